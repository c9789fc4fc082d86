package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/Awk34/river-pod/pod"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "measure update propagation through provider chains",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "iters", Value: 100, Usage: "timed updates per shape"},
			&cli.StringFlag{Name: "cpuprofile", Usage: "write a CPU profile to this file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if path := cmd.String("cpuprofile"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				pprof.StartCPUProfile(f)
				defer pprof.StopCPUProfile()
			}

			log.Printf("warming up")
			benchmarkPropagate(int(cmd.Int("iters")))
			return nil
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	ww = []int{1, 10, 100, 1_000}
	hh = []int{1, 10, 100}
)

func benchmarkPropagate(iters int) {
	tbl := table.NewWriter()
	tbl.SetTitle("Provider Chains")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			src := pod.NewState("src", 1)
			ct := pod.NewContainer()

			stops := make([]func(), 0, w)
			for i := 0; i < w; i++ {
				last := chain(src, h, i)
				stops = append(stops, pod.Listen(ct, last, func(int, error) {}))
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				if err := pod.Update(ct, src, i+2); err != nil {
					log.Panic(err)
				}
				tach.AddTime(time.Since(start))
			}

			for _, stop := range stops {
				stop()
			}
			ct.Dispose()

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	tbl.Render()
}

// chain builds h derived providers on top of src, each adding one.
func chain(src *pod.StateDefinition[int], h, lane int) pod.Provider[int] {
	var last pod.Provider[int] = src
	for j := 0; j < h; j++ {
		prev := last
		last = pod.New(fmt.Sprintf("lane%d.depth%d", lane, j), func(ref *pod.Ref) (int, error) {
			v, err := pod.Watch(ref, prev)
			return v + 1, err
		})
	}
	return last
}
