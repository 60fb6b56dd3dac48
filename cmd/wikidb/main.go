// Command wikidb is the operational CLI for this module: inspect a
// manifest, warm the process-wide index cache, run a single query from
// the terminal for smoke-testing, or run a diagnostics-only HTTP server
// exposing /healthz and /metrics. It never serves the query surface
// itself; that routing layer is out of scope here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/config"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/embed"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/indexload"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/query"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/reqctx"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/vector"
)

const helptext = `Usage: wikidb [COMMAND] [ARGS]

Inspecting the corpus:
wikidb show

Warming the process-wide index cache:
wikidb warm

Running a single query for smoke-testing:
wikidb query -type article -id p123
wikidb query -type article -title "Ada Lovelace"
wikidb query -type text -q "computing pioneer" -limit 5
wikidb query -type geo -lat 51.5 -lng -0.12 -radius 5000 -fast
wikidb query -type vector -q "computing pioneer" -k 10
wikidb query -type relationships -id p123 -direction both

Running the diagnostics server (/healthz, /metrics only):
wikidb serve -p 8080`

func main() {
	logger := log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)

	if len(os.Args) < 2 {
		fmt.Println(helptext)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "show":
		if err := runShow(logger); err != nil {
			logger.Fatalf("show: %v", err)
		}
	case "warm":
		if err := runWarm(logger); err != nil {
			logger.Fatalf("warm: %v", err)
		}
	case "query":
		if err := runQuery(logger, os.Args[2:]); err != nil {
			logger.Fatalf("query: %v", err)
		}
	case "serve":
		if err := runServe(logger, os.Args[2:]); err != nil {
			logger.Fatalf("serve: %v", err)
		}
	default:
		fmt.Println(helptext)
		os.Exit(1)
	}
}

// env bundles the process-wide pieces every subcommand needs: the
// resolved config, the bucket(s) it names, and a registered metrics set.
type env struct {
	cfg         config.Config
	dataBucket  wikidb.Bucket
	indexBucket wikidb.Bucket
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
}

// loadEnv resolves configuration and opens the data/index buckets.
// DATA_ROOT and INDEX_ROOT are independent bucket URLs (INDEX_ROOT
// defaults to DATA_ROOT's own value per config.Load): the two are
// opened separately so an operator can host the geo/FTS/vector index
// documents in a different bucket than the Parquet corpus itself.
func loadEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	dataBucket, err := wikidb.OpenBucket(ctx, cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("opening DATA_ROOT: %w", err)
	}
	indexBucket := dataBucket
	if cfg.IndexRoot != cfg.DataRoot {
		indexBucket, err = wikidb.OpenBucket(ctx, cfg.IndexRoot)
		if err != nil {
			return nil, fmt.Errorf("opening INDEX_ROOT: %w", err)
		}
	}
	reg := prometheus.NewRegistry()
	return &env{
		cfg:         cfg,
		dataBucket:  dataBucket,
		indexBucket: indexBucket,
		metrics:     metrics.New(reg),
		registry:    reg,
	}, nil
}

func manifestPaths() reqctx.Paths {
	return reqctx.Paths{
		ManifestPath: "articles/manifest.json",
		TitlesPath:   "indexes/titles.json",
		IDsPath:      "indexes/ids.json",
		TypesPath:    "indexes/types.json",
	}
}

// defaultVectorConfig holds the HNSW construction parameters used when
// warming a vector partition; the per-partition dimension is overridden
// from each .lance file's own metadata at load time.
func defaultVectorConfig() vector.Config {
	return vector.Config{M: 16, EfConstruction: 200, Metric: vector.MetricCosine, RandomSeed: 1}
}

func newHolder(e *env) *reqctx.Holder {
	return reqctx.NewHolder(reqctx.Loaders{
		LoadGeo:    indexload.Geo(e.indexBucket, e.metrics),
		LoadFTS:    indexload.FTS(e.indexBucket, e.metrics),
		LoadVector: indexload.Vector(e.indexBucket, e.metrics, defaultVectorConfig()),
	})
}

// runShow loads the manifest and prints a short summary: article/category
// counts and the number of data files, per this subcommand's "inspect a
// manifest" charter.
func runShow(logger *log.Logger) error {
	ctx := context.Background()
	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.dataBucket.Close()

	container := reqctx.New(e.dataBucket, e.metrics, manifestPaths(), nil)
	defer container.Close()

	m, err := container.ManifestReader(ctx)
	if err != nil {
		return err
	}
	logger.Printf("total articles: %d", m.Manifest.TotalArticles)
	logger.Printf("data files: %d", len(m.Manifest.Files))
	for _, cat := range model.Categories {
		if n, ok := m.Manifest.CategoryCounts[cat]; ok {
			logger.Printf("  %-8s %d", cat, n)
		}
	}
	return nil
}

// runWarm builds the process-wide geo/FTS indexes up front (vector
// partitions stay lazy, since the set of model/category pairs isn't
// known without scanning the embeddings/ prefix), logging the total time
// the warm-up took.
func runWarm(logger *log.Logger) error {
	ctx := context.Background()
	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.dataBucket.Close()
	if e.indexBucket != e.dataBucket {
		defer e.indexBucket.Close()
	}

	holder := newHolder(e)
	start := time.Now()
	if err := holder.WarmUp(ctx); err != nil {
		return err
	}
	logger.Printf("warm-up completed in %s", time.Since(start))
	return nil
}

func runQuery(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	kind := fs.String("type", "", "article|text|geo|vector|relationships")
	id := fs.String("id", "", "article id")
	title := fs.String("title", "", "article title")
	q := fs.String("q", "", "query text")
	limit := fs.Int("limit", 10, "result limit")
	k := fs.Int("k", 10, "k for vector search")
	lat := fs.Float64("lat", 0, "latitude")
	lng := fs.Float64("lng", 0, "longitude")
	radius := fs.Float64("radius", 1000, "radius in meters")
	fast := fs.Bool("fast", false, "use the geo index if loaded")
	useHNSW := fs.Bool("hnsw", false, "use the HNSW index if loaded")
	embedModel := fs.String("model", "", "embedding model (defaults to EMBED_MODEL)")
	direction := fs.String("direction", "both", "out|in|both")
	fs.Parse(args)

	ctx := context.Background()
	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.dataBucket.Close()
	if e.indexBucket != e.dataBucket {
		defer e.indexBucket.Close()
	}

	holder := newHolder(e)
	container := reqctx.New(e.dataBucket, e.metrics, manifestPaths(), holder)
	defer container.Close()

	embedModelName := *embedModel
	if embedModelName == "" {
		embedModelName = e.cfg.EmbedModel
	}
	embedClient := embed.New(e.cfg)
	facade := query.New(container, embedClient, e.metrics)

	var result interface{}
	switch *kind {
	case "article":
		if *id != "" {
			result, err = facade.ArticleByID(ctx, *id)
		} else {
			result, err = facade.ArticleByTitle(ctx, *title)
		}
	case "text":
		result, err = facade.TextSearch(ctx, query.TextSearchRequest{Query: *q, Limit: *limit})
	case "geo":
		result, err = facade.GeoSearch(ctx, query.GeoSearchRequest{
			Center:       model.LatLng{Lat: *lat, Lng: *lng},
			RadiusMeters: *radius,
			Limit:        *limit,
			Fast:         *fast,
		})
	case "vector":
		result, err = facade.VectorSearch(ctx, query.VectorSearchRequest{
			QueryText: *q,
			K:         *k,
			Model:     embedModelName,
			UseHNSW:   *useHNSW,
		})
	case "relationships":
		dir := query.DirectionBoth
		switch *direction {
		case "out":
			dir = query.DirectionOut
		case "in":
			dir = query.DirectionIn
		}
		result, err = facade.RelationshipsByID(ctx, *id, dir, *limit)
	default:
		return fmt.Errorf("unknown -type %q", *kind)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runServe starts the diagnostics-only HTTP server: /healthz and
// /metrics. The query surface itself has no net/http handlers in this
// module; a front end composes the query facade into its own routing.
func runServe(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.String("p", "8080", "port to serve diagnostics on")
	fs.Parse(args)

	ctx := context.Background()
	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.dataBucket.Close()
	if e.indexBucket != e.dataBucket {
		defer e.indexBucket.Close()
	}

	holder := newHolder(e)
	go func() {
		if err := holder.WarmUp(ctx); err != nil {
			logger.Printf("warm-up failed: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	logger.Printf("serving diagnostics on :%s", *port)
	return http.ListenAndServe(":"+*port, mux)
}
