package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/supergus/ll-spinningup-clean/examples"
)

func main() {
	exp := flag.String("experiment", "foo", "experiment to run: foo or "+
		"runner")
	flag.Parse()

	switch *exp {
	case "foo":
		examples.FooExperiment()
	case "runner":
		examples.ProjectRunner()
	default:
		fmt.Fprintf(os.Stderr, "unknown experiment %q\n", *exp)
		flag.Usage()
		os.Exit(1)
	}
}
