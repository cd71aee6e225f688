package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Suhaibinator/SDispatch/internal/config"
	"github.com/Suhaibinator/SDispatch/pkg/metadata"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRoutesCmd() *cobra.Command {
	var (
		manifest string
		noColor  bool
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List routes and hooks",
		Long: `List every registered route with its parameters and the hooks that wrap
it. Reads SDISPATCH_MANIFEST (or --manifest), or the built-in demo routes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if manifest != "" {
				cfg.Manifest = manifest
			}
			store, err := newApp(cfg, zap.NewNop(), "-").store()
			if err != nil {
				return err
			}
			printRoutes(cmd.OutOrStdout(), store, noColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifest, "manifest", "", "manifest file to list")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

// printRoutes writes one table row per route followed by the hook patterns.
func printRoutes(w io.Writer, store *metadata.Store, noColor bool) {
	headers := []string{"METHOD", "PATH", "ROUTE", "PARAMS", "HOOKS"}
	var rows [][]string
	for _, route := range store.Routes() {
		rows = append(rows, []string{
			route.Method,
			route.Path,
			route.Name(),
			formatParams(route),
			strings.Join(scopedHooks(store, route), ","),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	method := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		method.DisableColor()
		gray.DisableColor()
	}

	for i, h := range headers {
		bold.Fprint(w, pad(h, widths[i]))
		fmt.Fprint(w, sep(i, len(headers)))
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			switch i {
			case 0:
				method.Fprint(w, pad(cell, widths[i]))
			case 3:
				gray.Fprint(w, pad(cell, widths[i]))
			default:
				fmt.Fprint(w, pad(cell, widths[i]))
			}
			fmt.Fprint(w, sep(i, len(row)))
		}
		fmt.Fprintln(w)
	}

	if hooks := store.Hooks(); len(hooks) > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "HOOKS")
		for _, h := range hooks {
			pattern := "*"
			if h.Pattern != nil {
				pattern = h.Pattern.String()
			}
			fmt.Fprintf(w, "  %s  %s\n", h.Name, gray.Sprint(pattern))
		}
	}
}

func formatParams(route *metadata.RouteMetadata) string {
	parts := make([]string, 0, len(route.Params))
	for _, p := range route.SortedParams() {
		s := fmt.Sprintf("%d:%s", p.Index, p.Kind())
		if name := p.Name(); name != "" {
			s += "(" + name + ")"
		}
		if p.Transform != nil && p.Transform.ID != "" {
			s += "|" + p.Transform.ID
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// scopedHooks returns the hooks that would run for a request to the route
// template itself.
func scopedHooks(store *metadata.Store, route *metadata.RouteMetadata) []string {
	var names []string
	for _, h := range store.MatchHooks(route.Path, route) {
		names = append(names, h.Name)
	}
	return names
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func sep(i, n int) string {
	if i < n-1 {
		return "  "
	}
	return ""
}
