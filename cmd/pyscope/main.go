package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"pyscope/internal/config"
	"pyscope/internal/crawler"
	"pyscope/internal/query"
	"pyscope/internal/verify"
	"pyscope/internal/watch"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "pyscope",
		Short: "Graph-based name resolution for Python projects",
	}
	configPath string
	rootPath   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&rootPath, "root", "r", "", "Project root for import resolution (overrides config)")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
}

// initService loads config and registers every Python file under the
// project root. Files are parsed lazily, so startup stays cheap even on
// large trees.
func initService() (*query.Service, *config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if rootPath != "" {
		cfg.Project.RootPath = rootPath
	}
	if cfg.Project.RootPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		cfg.Project.RootPath = cwd
	}

	svc := query.New(cfg, nil)
	cr := crawler.NewCrawler()
	if err := cr.ScanProject(cfg.Project.RootPath, func(path string) {
		svc.AddFiles(path)
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return svc, cfg, nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <file> <line> <col>",
	Short: "Resolve the reference at a source position to its definitions",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		svc, _, err := initService()
		if err != nil {
			log.Fatalf("Setup failed: %v", err)
		}

		file := filepath.ToSlash(args[0])
		line, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid line %q: %v", args[1], err)
		}
		col, err := strconv.Atoi(args[2])
		if err != nil {
			log.Fatalf("Invalid column %q: %v", args[2], err)
		}

		defs, err := svc.ResolveAt(file, line, col)
		if err != nil {
			log.Fatalf("Resolution failed: %v", err)
		}
		if len(defs) == 0 {
			fmt.Printf("❓ %s:%d:%d resolves to nothing\n", file, line, col)
			return
		}
		for _, d := range defs {
			fmt.Printf("✅ %s:%d:%d  %s\n", d.Node.File, d.Pos.Line, d.Pos.Col, d.Symbol)
		}
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs <file>",
	Short: "List the references in a file and where each resolves",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, _, err := initService()
		if err != nil {
			log.Fatalf("Setup failed: %v", err)
		}

		file := filepath.ToSlash(args[0])
		refs, err := svc.References(file)
		if err != nil {
			log.Fatalf("Failed to load %s: %v", file, err)
		}
		for _, ref := range refs {
			defs, err := svc.Resolve(file, ref.Node)
			if err != nil {
				log.Fatalf("Resolution failed at %s:%d:%d: %v", file, ref.Pos.Line, ref.Pos.Col, err)
			}
			if len(defs) == 0 {
				fmt.Printf("❓ %s:%d:%d  %s -> unresolved\n", file, ref.Pos.Line, ref.Pos.Col, ref.Symbol)
				continue
			}
			for _, d := range defs {
				fmt.Printf("✅ %s:%d:%d  %s -> %s:%d\n", file, ref.Pos.Line, ref.Pos.Col, ref.Symbol, d.Node.File, d.Pos.Line)
			}
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Run annotated-fixture assertions (# ^ defined: N) against the resolver",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		var fixtures []string
		cr := crawler.NewCrawler()
		if err := cr.ScanProject(path, func(p string) {
			fixtures = append(fixtures, p)
		}); err != nil {
			log.Fatalf("Failed to scan %s: %v", path, err)
		}

		total, passed := 0, 0
		start := time.Now()
		for _, f := range fixtures {
			content, err := os.ReadFile(filepath.FromSlash(f))
			if err != nil {
				log.Fatalf("Failed to read %s: %v", f, err)
			}
			fx := verify.ParseFixture(filepath.Base(f), content)
			if fx.RootPath == "" {
				fx.RootPath = "."
			}

			report := verify.RunFixture(fx)
			total += report.Total
			passed += report.Passed
			for _, fail := range report.Failures {
				fmt.Printf("❌ %s: %s\n", f, fail.String())
			}
		}
		fmt.Printf("📊 %d/%d assertions passed in %v\n", passed, total, time.Since(start))
		if passed != total {
			os.Exit(1)
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and re-resolve files as they change",
	Run: func(cmd *cobra.Command, args []string) {
		svc, cfg, err := initService()
		if err != nil {
			log.Fatalf("Setup failed: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("👀 Watching %s (Ctrl-C to stop)\n", cfg.Project.RootPath)
		w := watch.New(cfg.Project.RootPath)
		err = w.Run(ctx, func(changed []string) {
			for _, f := range changed {
				svc.Invalidate(f)
				svc.AddFiles(f)
			}
			fmt.Printf("🔄 Invalidated %d file(s)\n", len(changed))
		})
		if err != nil {
			log.Fatalf("Watch failed: %v", err)
		}
	},
}
