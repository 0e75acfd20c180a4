// Command rankmine manages competitions from the terminal: list and create
// competitions, print standings, and move exchange bundles in and out.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"rankmine/internal/arena"
	"rankmine/internal/blob"
	"rankmine/pkg/domain"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rankmine: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: rankmine <command> [flags]

commands:
  list                         list competitions
  create -title T [-min -max -step -mode]
                               create a competition
  delete -id ID                delete a competition and everything it owns
  standings -id ID             print the ranked standings for a competition
  export -id ID [-out FILE]    write a competition bundle as JSON
  import [-in FILE]            import a bundle (stdin by default)
  templates                    list saved templates
  seed-template                install the starter template
  instantiate -template ID [-title T]
                               create a competition from a template`)
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}
	ctx := context.Background()

	store, err := arena.OpenPersistentStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	svc := arena.New(store, blobs,
		arena.WithLogger(arena.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))),
	)
	defer func() { _ = svc.Close(ctx) }()

	switch args[0] {
	case "list":
		return cmdList(ctx, svc, out)
	case "create":
		return cmdCreate(ctx, svc, out, args[1:])
	case "delete":
		return cmdDelete(ctx, svc, args[1:])
	case "standings":
		return cmdStandings(ctx, svc, out, args[1:])
	case "export":
		return cmdExport(ctx, svc, out, args[1:])
	case "import":
		return cmdImport(ctx, svc, out, args[1:])
	case "templates":
		return cmdTemplates(ctx, svc, out)
	case "seed-template":
		return cmdSeedTemplate(ctx, svc, out)
	case "instantiate":
		return cmdInstantiate(ctx, svc, out, args[1:])
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func cmdList(ctx context.Context, svc *arena.Service, out io.Writer) error {
	comps, err := svc.ListCompetitions(ctx)
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		fmt.Fprintln(out, "no competitions")
		return nil
	}
	for _, c := range comps {
		fmt.Fprintf(out, "%s  %-30s  [%g..%g step %g %s]  updated %s\n",
			c.ID, c.Title, c.Scoring.Min, c.Scoring.Max, c.Scoring.Step, c.Scoring.Mode,
			c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func cmdCreate(ctx context.Context, svc *arena.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	title := fs.String("title", "", "competition title")
	smin := fs.Float64("min", 0, "minimum score")
	smax := fs.Float64("max", 10, "maximum score")
	step := fs.Float64("step", 1, "score step")
	mode := fs.String("mode", string(domain.ScoringNumeric), "scoring mode: numeric|slider|stars")
	if err := fs.Parse(args); err != nil {
		return err
	}
	comp, err := svc.CreateCompetition(ctx, *title, domain.ScoringConfig{
		Min: *smin, Max: *smax, Step: *step, Mode: domain.ScoringMode(*mode),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, comp.ID)
	return nil
}

func cmdDelete(ctx context.Context, svc *arena.Service, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.String("id", "", "competition id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("delete: -id required")
	}
	return svc.DeleteCompetition(ctx, *id)
}

func cmdStandings(ctx context.Context, svc *arena.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("standings", flag.ContinueOnError)
	id := fs.String("id", "", "competition id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("standings: -id required")
	}
	if _, err := svc.LoadArena(ctx, *id); err != nil {
		return err
	}
	rows, err := svc.Standings()
	if err != nil {
		return err
	}
	for i, row := range rows {
		fmt.Fprintf(out, "%2d. %-24s %8.2f  (%s)\n", i+1, row.Contestant.Name, row.TotalScore, row.Progress)
	}
	return nil
}

func cmdExport(ctx context.Context, svc *arena.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	id := fs.String("id", "", "competition id")
	outPath := fs.String("out", "", "output file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("export: -id required")
	}
	w := out
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return svc.WriteBundle(ctx, *id, w)
}

func cmdImport(ctx context.Context, svc *arena.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	inPath := fs.String("in", "", "input file (stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	comp, err := svc.ReadBundle(ctx, r)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, comp.ID)
	return nil
}

func cmdTemplates(ctx context.Context, svc *arena.Service, out io.Writer) error {
	templates, err := svc.ListTemplates(ctx)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		fmt.Fprintln(out, "no templates")
		return nil
	}
	for _, tpl := range templates {
		fmt.Fprintf(out, "%s  %-30s  %d contestants, %d rounds\n",
			tpl.ID, tpl.Name, len(tpl.Contestants), len(tpl.Rounds))
	}
	return nil
}

func cmdSeedTemplate(ctx context.Context, svc *arena.Service, out io.Writer) error {
	tpl, err := svc.EnsureStarterTemplate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tpl.ID)
	return nil
}

func cmdInstantiate(ctx context.Context, svc *arena.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("instantiate", flag.ContinueOnError)
	templateID := fs.String("template", "", "template id")
	title := fs.String("title", "", "competition title (template name when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*templateID) == "" {
		return fmt.Errorf("instantiate: -template required")
	}
	comp, err := svc.InstantiateTemplate(ctx, *templateID, *title)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, comp.ID)
	return nil
}
