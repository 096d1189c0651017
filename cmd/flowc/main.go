// Command flowc compiles a JSON-encoded flow program into its final
// imperative IR, printing either the compiled IR or the diagnostics
// that stopped it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/pipeline"
)

func main() {
	var timeout time.Duration
	var pretty bool
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "compilation deadline")
	flag.BoolVar(&pretty, "pretty", true, "pretty-print the output JSON")
	flag.Usage = func() {
		fmt.Println("Usage:", os.Args[0], "[options] <program.json>")
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	log.SetFlags(log.Lshortfile)

	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	b, err := ioutil.ReadFile(args[0])
	if err != nil {
		log.Fatal("could not read file: ", args[0])
	}

	var file ast.File
	if err := json.Unmarshal(b, &file); err != nil {
		log.Fatal("could not parse program: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sess := pipeline.NewSession()
	out, errs, err := sess.CompileWithContext(ctx, &file)
	if err != nil {
		log.Fatal("compilation aborted: ", err)
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		log.Fatal("could not encode output: ", err)
	}
}
