// Command balance splits players given as Name:score arguments into two
// teams, e.g.
//
//	balance Ann:8 Bob:6 Cy:5 Di:3
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Termdamp/MatchMixer/internal/domain/balancer"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/internal/lobby"
)

var errUsage = errors.New("usage: balance [-json] Name:score Name:score ...")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	players, err := parsePlayers(fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	res, err := lobby.Balance(players)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	printResult(stdout, res)
	return 0
}

func parsePlayers(args []string) ([]model.Participant, error) {
	if len(args) == 0 {
		return nil, errUsage
	}
	players := make([]model.Participant, 0, len(args))
	for _, arg := range args {
		i := strings.LastIndexByte(arg, ':')
		if i <= 0 {
			return nil, fmt.Errorf("%q: want Name:score", arg)
		}
		score, err := strconv.Atoi(arg[i+1:])
		if err != nil {
			return nil, fmt.Errorf("%q: bad score: %w", arg, err)
		}
		players = append(players, model.Participant{Name: arg[:i], Score: score})
	}
	return players, nil
}

func printResult(w io.Writer, res balancer.Result) {
	fmt.Fprintf(w, "Team A (%d): %s\n", res.ScoreA, names(res.TeamA))
	fmt.Fprintf(w, "Team B (%d): %s\n", res.ScoreB, names(res.TeamB))
	if len(res.Bench) > 0 {
		fmt.Fprintf(w, "Bench: %s\n", names(res.Bench))
	}
	fmt.Fprintf(w, "Diff: %d\n", res.Diff)
}

func names(ps []model.Participant) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name + ":" + strconv.Itoa(p.Score)
	}
	return strings.Join(out, ", ")
}
