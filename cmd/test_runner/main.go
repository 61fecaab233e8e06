// Command test_runner runs the module's tests, optionally including the database-backed ones.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	verbose     = flag.Bool("v", false, "verbose output")
	short       = flag.Bool("short", false, "run only short tests")
	race        = flag.Bool("race", false, "enable the race detector")
	timeout     = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp  = flag.String("run", "", "run only tests matching the regular expression")
	postgresDSN = flag.String("postgres", "", "DSN of a disposable Postgres database for repository tests")
)

func main() {
	flag.Parse()

	args := []string{"test"}
	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	args = append(args, fmt.Sprintf("-timeout=%s", timeout.String()))
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}

	pkgs := flag.Args()
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	args = append(args, pkgs...)

	cmd := exec.Command("go", args...)

	// Repository tests against Postgres are skipped unless a DSN is provided.
	env := os.Environ()
	if *postgresDSN != "" {
		env = append(env, "TEST_DATABASE_DSN="+*postgresDSN)
	}
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s (postgres: %t)\n", strings.Join(args, " "), *postgresDSN != "")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
}
