package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/colorfulnotion/armjit/recompiler"
)

// translateOrRun fills the address table either from explicit keys or by
// running the image.
func translateOrRun(ctx context.Context, s *session, addrs []string) error {
	if len(addrs) == 0 {
		e, err := s.execute(ctx)
		if e != nil {
			e.Close()
		}
		return err
	}
	keys, err := parseKeys(addrs, s.thumb)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := s.guest.Translator.Translate(ctx, k); err != nil {
			return fmt.Errorf("translate %s: %w", k, err)
		}
	}
	return nil
}

func newDisasmCmd() *cobra.Command {
	var (
		img   imageFlags
		addrs []string
	)
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Show the host code generated for guest blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := img.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := translateOrRun(ctx, s, addrs); err != nil {
				return err
			}
			for _, u := range s.guest.Table.Units() {
				fmt.Println(recompiler.DisassembleUnit(u))
			}
			return nil
		},
	}
	img.add(cmd)
	cmd.Flags().StringSliceVarP(&addrs, "addr", "a", nil, "guest addresses to translate instead of running")
	return cmd
}

// tableTree groups the installed units by their first radix level index.
func tableTree(t *recompiler.AddressTable) treeprint.Tree {
	tree := treeprint.New()
	st := t.TableStats()
	used, capacity := t.CodeUsage()
	tree.SetValue(fmt.Sprintf("\033[1;34m%s address table\033[0m: %d entries, %d nodes, %d bytes, code %d/%d",
		t.Arch(), st.Entries, st.Nodes, st.Bytes, used, capacity))
	top := t.Levels()[0]
	branches := make(map[uint32]treeprint.Tree)
	for _, u := range t.Units() {
		idx := (u.Key.Key() >> top.Shift) & top.Mask()
		b, ok := branches[idx]
		if !ok {
			b = tree.AddBranch(fmt.Sprintf("\033[1;33m[%#x]\033[0m", idx))
			branches[idx] = b
		}
		b.AddNode(fmt.Sprintf("%s -> %#x (%d insts, %d bytes)", u.Key, u.Entry, len(u.Instructions), len(u.Code)))
	}
	return tree
}

func newTableCmd() *cobra.Command {
	var (
		img   imageFlags
		addrs []string
	)
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the address table after translation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := img.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := translateOrRun(ctx, s, addrs); err != nil {
				return err
			}
			fmt.Println(tableTree(s.guest.Table).String())
			return nil
		},
	}
	img.add(cmd)
	cmd.Flags().StringSliceVarP(&addrs, "addr", "a", nil, "guest addresses to translate instead of running")
	return cmd
}

// profileChart plots per-key translation counts and block sizes.
func profileChart(image string, profile []recompiler.ProfileEntry) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Translation profile", Subtitle: image}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	keys := make([]string, 0, len(profile))
	compiles := make([]opts.BarData, 0, len(profile))
	insts := make([]opts.BarData, 0, len(profile))
	hostBytes := make([]opts.BarData, 0, len(profile))
	for _, p := range profile {
		keys = append(keys, p.Key.String())
		compiles = append(compiles, opts.BarData{Value: p.Compiles})
		insts = append(insts, opts.BarData{Value: p.Instructions})
		hostBytes = append(hostBytes, opts.BarData{Value: p.HostBytes})
	}
	bar.SetXAxis(keys).
		AddSeries("compiles", compiles).
		AddSeries("guest instructions", insts).
		AddSeries("host bytes", hostBytes)
	return bar
}

func newChartCmd() *cobra.Command {
	var (
		img imageFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Run an image and render its translation profile as HTML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := img.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := translateOrRun(ctx, s, nil); err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			page := components.NewPage()
			page.AddCharts(profileChart(img.path, s.guest.Translator.Profile()))
			if err := page.Render(f); err != nil {
				return err
			}
			fmt.Printf("profile chart written to %s\n", out)
			return nil
		},
	}
	img.add(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "profile.html", "output HTML file")
	return cmd
}
