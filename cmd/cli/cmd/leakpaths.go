package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/perf-analysis/internal/formatter"
	"github.com/perf-analysis/internal/parser/hprof"
	"github.com/perf-analysis/internal/parser/hprof/leakpath"
	"github.com/perf-analysis/internal/repository"
	"github.com/perf-analysis/pkg/config"
)

var (
	leakPathInputFile     string
	leakPathWeakRefClass  []string
	leakPathRetainedSize  bool
	leakPathConfigFile    string
	leakPathFrontierLimit int
)

var leakPathsCmd = &cobra.Command{
	Use:   "leakpaths",
	Short: "Find the shortest retaining path from a GC root to each leaking candidate",
	Long: `Parses an HPROF heap dump, locates every live instance of the given
weak/soft/phantom reference classes, and reports the shortest retaining
path from a GC root to each referent together with an approximate
retained heap size.`,
	RunE: runLeakPaths,
}

func init() {
	rootCmd.AddCommand(leakPathsCmd)

	binName := BinName()
	leakPathsCmd.Example = fmt.Sprintf(`  # Find retaining paths for every WeakReference/SoftReference/PhantomReference
  %s leakpaths -i ./heap.hprof

  # Restrict the scan to specific reference-holding classes
  %s leakpaths -i ./heap.hprof --weak-ref-class com.example.cache.CacheEntry

  # Load the exclusion-rule catalog from the configured database
  %s leakpaths -i ./heap.hprof --config ./configs/config.yaml`,
		binName, binName, binName)

	leakPathsCmd.Flags().StringVarP(&leakPathInputFile, "input", "i", "", "HPROF heap dump file (required)")
	leakPathsCmd.MarkFlagRequired("input")
	leakPathsCmd.Flags().StringSliceVar(&leakPathWeakRefClass, "weak-ref-class", nil,
		"Reference class to scan for leaking candidates (repeatable; default: the three JDK reference classes)")
	leakPathsCmd.Flags().BoolVar(&leakPathRetainedSize, "retained-size", true,
		"Also compute an approximate retained heap size per candidate (default taken from analysis.leak_path.compute_retained_size when --config is set)")
	leakPathsCmd.Flags().StringVar(&leakPathConfigFile, "config", "", "Config file; when set, the exclusion-rule catalog is loaded from its database")
	leakPathsCmd.Flags().IntVar(&leakPathFrontierLimit, "frontier-soft-limit", 0,
		"Log a warning once the search frontier grows past this size (default taken from analysis.leak_path.frontier_soft_limit when --config is set)")
}

func runLeakPaths(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	ctx := context.Background()

	var cfg *config.Config
	if leakPathConfigFile != "" {
		loaded, err := config.Load(leakPathConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	computeRetainedSize := leakPathRetainedSize
	if cfg != nil && !cmd.Flags().Changed("retained-size") {
		computeRetainedSize = cfg.Analysis.LeakPath.ComputeRetainedSize
	}
	frontierSoftLimit := leakPathFrontierLimit
	if cfg != nil && !cmd.Flags().Changed("frontier-soft-limit") {
		frontierSoftLimit = cfg.Analysis.LeakPath.FrontierSoftLimit
	}

	f, err := os.Open(leakPathInputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	log.Info("Parsing heap dump: %s", leakPathInputFile)
	parser := hprof.NewParser(hprof.DefaultParserOptions())
	result, err := parser.Parse(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to parse heap dump: %w", err)
	}
	if result.RefGraph == nil {
		return fmt.Errorf("heap dump parsed without retainer analysis enabled")
	}

	adapter := hprof.NewLeakPathAdapter(result.RefGraph, result.ClassLayouts, result.Header.IDSize)

	weakRefs := adapter.FindWeakReferents(leakPathWeakRefClass)
	if len(weakRefs) == 0 {
		log.Info("No leaking candidates found for the given reference classes.")
		return nil
	}
	log.Info("Found %d leaking candidate(s).", len(weakRefs))

	exclusionsFactory, err := buildExclusionsFactory(ctx, cfg)
	if err != nil {
		return err
	}

	analyzer := leakpath.NewAnalyzer(log)
	results, err := analyzer.FindPaths(ctx, leakpath.FindPathsInput{
		Parser:                  adapter,
		ExclusionsFactory:       exclusionsFactory,
		LeakingWeakRefs:         weakRefs,
		GCRootIDs:               adapter.GCRoots(),
		ComputeRetainedHeapSize: computeRetainedSize,
		FrontierSoftLimit:       frontierSoftLimit,
	})
	if err != nil {
		return fmt.Errorf("retained-path analysis failed: %w", err)
	}

	lpf := &formatter.LeakPathFormatter{}
	lpf.Format(results, log)
	return nil
}

// buildExclusionsFactory loads the exclusion-rule catalog from the
// configured database when cfg is non-nil, otherwise falls back to a
// small built-in catalog covering the JDK's own weak-collection
// internals.
func buildExclusionsFactory(ctx context.Context, cfg *config.Config) (leakpath.ExclusionsFactory, error) {
	if cfg == nil {
		rules := defaultExclusionRules()
		return func(context.Context, leakpath.Parser) ([]leakpath.ExclusionRule, error) {
			return rules, nil
		}, nil
	}

	db, err := repository.NewGormDB(&repository.DBConfig{
		Type:     cfg.Database.Type,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := repository.NewGormExclusionRepository(db)
	return repository.ExclusionsFactory(repo), nil
}

// defaultExclusionRules demotes references held by the value field of
// WeakHashMap and ThreadLocalMap entries, the JDK's own weak-collection
// internals.
func defaultExclusionRules() []leakpath.ExclusionRule {
	return []leakpath.ExclusionRule{
		{
			Kind:      leakpath.InstanceFieldExclusion,
			ClassName: "java.util.WeakHashMap$Entry",
			FieldName: "value",
			Exclusion: leakpath.Exclusion{
				Status:      leakpath.WeaklyReachable,
				Description: "held by a WeakHashMap entry value",
			},
		},
		{
			Kind:      leakpath.InstanceFieldExclusion,
			ClassName: "java.lang.ThreadLocal$ThreadLocalMap$Entry",
			FieldName: "value",
			Exclusion: leakpath.Exclusion{
				Status:      leakpath.WeaklyReachable,
				Description: "held by a ThreadLocalMap entry value",
			},
		},
	}
}
