// Command diffgrok parses a declarative model file, runs the resulting
// pipeline and writes the solution as CSV on stdout. It exits non-zero on
// parse or integration failure, with the error on stderr.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	diffgrok "github.com/datagrok-ai/DiffGrok"
	"github.com/datagrok-ai/DiffGrok/model"
)

type runConfig struct {
	Method    string  `yaml:"method"`
	Tolerance float64 `yaml:"tolerance"`
	Stats     bool    `yaml:"stats"`
}

type overrides map[string]float64

func (o overrides) String() string { return "" }

func (o overrides) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("bad value in %q: %v", s, err)
	}
	o[strings.TrimSpace(k)] = f
	return nil
}

func main() {
	var (
		modelPath  = flag.String("model", "", "model source file")
		methodName = flag.String("method", "", "solver: mrt, ros3prw or ros34prw")
		configPath = flag.String("config", "", "yaml run configuration")
		stats      = flag.Bool("stats", false, "print run statistics to stderr")
		inputs     = overrides{}
	)
	flag.Var(inputs, "set", "override an input, name=value (repeatable)")
	flag.Parse()
	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "diffgrok: -model is required")
		os.Exit(2)
	}

	var cfg runConfig
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err == nil {
			err = yaml.Unmarshal(raw, &cfg)
		}
		if err != nil {
			fail(err)
		}
	}
	if *methodName != "" {
		cfg.Method = *methodName
	}
	if *stats {
		cfg.Stats = true
	}

	src, err := os.ReadFile(*modelPath)
	if err != nil {
		fail(err)
	}
	m, err := model.Parse(string(src))
	if err != nil {
		fail(err)
	}
	if cfg.Tolerance > 0 {
		m.Tolerance = cfg.Tolerance
	}
	pl, err := diffgrok.BuildPipeline(m)
	if err != nil {
		fail(err)
	}
	if cfg.Method != "" {
		mth, ok := diffgrok.Methods()[strings.ToLower(cfg.Method)]
		if !ok {
			fail(fmt.Errorf("diffgrok: unknown method %q", cfg.Method))
		}
		pl.Method = mth
	}

	var vec []float64
	if len(inputs) > 0 {
		if vec, err = model.InputVector(inputs, m); err != nil {
			fail(err)
		}
	}
	sol, err := diffgrok.ApplyPipeline(pl, vec)
	if err != nil {
		fail(err)
	}

	writeCSV(sol)
	if cfg.Stats {
		s := sol.Stat
		fmt.Fprintf(os.Stderr, "feval=%d jeval=%d decomp=%d linsol=%d accepted=%d rejected=%d\n",
			s.Nfeval, s.Njeval, s.Ndecomp, s.Nlinsol, s.Naccepted, s.Nrejected)
	}
}

func writeCSV(sol *diffgrok.Solution) {
	w := os.Stdout
	fmt.Fprint(w, sol.ArgName)
	for _, n := range sol.Names {
		fmt.Fprint(w, ",", n)
	}
	fmt.Fprintln(w)
	for k := 0; k < sol.Len(); k++ {
		fmt.Fprint(w, strconv.FormatFloat(sol.Arg[k], 'g', -1, 64))
		for _, col := range sol.Y {
			fmt.Fprint(w, ",", strconv.FormatFloat(col[k], 'g', -1, 64))
		}
		fmt.Fprintln(w)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
