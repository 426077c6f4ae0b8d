package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"inference-filter/internal/buckets"
	"inference-filter/internal/cache"
	"inference-filter/internal/database"
	"inference-filter/internal/engine"
	"inference-filter/internal/filter"
	"inference-filter/internal/host"
	"inference-filter/internal/labels"
	"inference-filter/internal/pipeline"
	"inference-filter/internal/routers"
	"inference-filter/internal/shared"
	"inference-filter/internal/tensor"
	"inference-filter/internal/tokenizer"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
)

func main() {
	// Flags / ENV Variables
	listen := flag.String("listen", shared.DefaultListenAddr, "Listen address")
	upstream := flag.String("upstream", "", "Comma separated upstream base urls, empty answers locally")
	taskName := flag.String("task", string(pipeline.TaskImage), "Task: image, digit or text")
	modelPath := flag.String("model", "", "Path to the onnx model")
	ortLib := flag.String("ort-lib", "", "Path to the onnxruntime shared library")
	tokenizerPath := flag.String("tokenizer", "", "Path to tokenizer.json, required for text")
	labelsPath := flag.String("labels", "", "Label map (.txt, .json or .yaml)")
	labelOffset := flag.Int("label-offset", 0, "Subtracted from output indices before label lookup")
	softmax := flag.String("softmax", "auto", "Softmax over outputs: auto, true or false")
	inputLayout := flag.String("input-layout", "auto", "Image layout: auto, nhwc or nchw")
	inputSize := flag.String("input-size", "", "HxW for models with a dynamic resolution")
	pixelMean := flag.String("pixel-mean", "", "Comma separated per-channel mean")
	pixelStd := flag.String("pixel-std", "", "Comma separated per-channel std")
	inputSource := flag.String("input-source", string(filter.SourceBody), "Input source: body, header or query")
	inputName := flag.String("input-name", shared.DefaultInputName, "Header or query parameter carrying text")
	textJSONPath := flag.String("text-json-path", "", "JSON path of the text field in the body")
	maxBodyBytes := flag.Int("max-body-bytes", shared.DefaultMaxBodyBytes, "Largest buffered body")
	maxBufferDuration := flag.Duration("max-buffer-duration", shared.DefaultMaxBufferDuration, "Longest time spent buffering a body")
	inferenceTimeout := flag.Duration("inference-timeout", shared.DefaultInferenceTimeout, "Per exchange inference budget")
	chunkSize := flag.Int("chunk-size", shared.DefaultChunkSize, "Body chunk size delivered to the filter")
	labelHeader := flag.String("label-header", shared.DefaultLabelHeader, "Response header for the label")
	confidenceHeader := flag.String("confidence-header", shared.DefaultConfidenceHeader, "Response header for the confidence")
	redisAddr := flag.String("redis-addr", "", "Redis host:port, enables the prediction cache")
	cacheTTL := flag.Duration("cache-ttl", shared.PredictionCacheTTL, "Prediction cache ttl")
	dsn := flag.String("dsn", "", "MySQL DSN, enables prediction recording")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	intraOpThreads := flag.Int("intra-op-threads", 0, "Onnxruntime intra op threads, 0 lets the runtime pick")
	lazyLoad := flag.Bool("lazy-load", false, "Load the model on first use instead of at startup")
	debug := flag.Bool("debug", false, "Debug enabled")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()
	defer func() {
		_ = log.Sync()
	}()

	task, err := pipeline.ParseTask(*taskName)
	if err != nil {
		panic(err)
	}
	if *modelPath == "" {
		panic("--model is required")
	}
	layout, err := tensor.ParseLayout(*inputLayout)
	if err != nil {
		panic(err)
	}
	height, width, err := parseSize(*inputSize)
	if err != nil {
		panic(err)
	}
	mean, err := parseFloats(*pixelMean)
	if err != nil {
		panic(err)
	}
	std, err := parseFloats(*pixelStd)
	if err != nil {
		panic(err)
	}
	useSoftmax, err := parseSoftmax(*softmax)
	if err != nil {
		panic(err)
	}
	sourceKind, err := filter.ParseSourceKind(*inputSource)
	if err != nil {
		panic(err)
	}
	upstreams, err := host.ParseUpstreams(*upstream)
	if err != nil {
		panic(err)
	}

	// Model handle
	handle := engine.NewHandle(engine.NewONNXLoader(engine.ONNXConfig{
		SharedLibraryPath: *ortLib,
		ModelPath:         *modelPath,
		IntraOpThreads:    *intraOpThreads,
		Optimize:          true,
	}))
	if !*lazyLoad {
		if err := handle.Load(); err != nil {
			panic(fmt.Sprintf("failed loading model: %s", err))
		}
		log.Infow("Model loaded", "model", *modelPath, "task", task)
	}

	opts := pipeline.Options{
		Task:         task,
		Softmax:      useSoftmax,
		Layout:       layout,
		Height:       height,
		Width:        width,
		Mean:         mean,
		Std:          std,
		TextJSONPath: *textJSONPath,
	}
	if *labelsPath != "" {
		lm, err := labels.Load(*labelsPath)
		if err != nil {
			panic(err)
		}
		lm.Offset = *labelOffset
		opts.Labels = lm
	}
	if task == pipeline.TaskText {
		if *tokenizerPath == "" {
			panic("--tokenizer is required for the text task")
		}
		tk, err := tokenizer.Load(*tokenizerPath)
		if err != nil {
			panic(err)
		}
		opts.Encoder = tk
	}
	var p pipeline.Pipeline
	p, err = pipeline.New(handle, opts)
	if err != nil {
		panic(err)
	}

	// Optional prediction cache
	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
		var artifacts []string
		if *tokenizerPath != "" {
			artifacts = append(artifacts, filepath.Base(*tokenizerPath))
		}
		namespace := cache.Namespace(opts, filepath.Base(*modelPath), artifacts...)
		p = cache.New(p, redisClient, namespace, *cacheTTL, log)
		log.Infow("Prediction cache enabled", "namespace", namespace)
	}

	// Optional prediction recorder
	var writeDB *sql.DB
	var recorder *buckets.PredictionCache
	if *dsn != "" {
		writeDB, err = sql.Open("mysql", *dsn)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		err = writeDB.Ping()
		if err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
		recorder = buckets.NewPredictionCache(log, &database.Store{DB: writeDB}, filepath.Base(*modelPath))
		log.Info("Prediction recording enabled")
	}

	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if writeDB != nil {
			_ = writeDB.Close()
		}
	}()

	cfg := filter.DefaultConfig()
	cfg.Source = filter.InputSource{Kind: sourceKind, Name: *inputName}
	cfg.MaxBodyBytes = *maxBodyBytes
	cfg.MaxBufferDuration = *maxBufferDuration
	cfg.InferenceTimeout = *inferenceTimeout
	cfg.Annotator = filter.Annotator{LabelHeader: *labelHeader, ConfidenceHeader: *confidenceHeader}

	var factoryOpts []filter.Option
	if recorder != nil {
		factoryOpts = append(factoryOpts, filter.WithRecorder(recorder))
	}
	factory, err := filter.NewFactory(cfg, p, log, factoryOpts...)
	if err != nil {
		panic(err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(emw.BodyLimit(shared.DefaultProxyBodyLimit))

	labelCount := 0
	if opts.Labels != nil {
		labelCount = opts.Labels.Len()
	}
	routers.RegisterAdminRoutes(e, routers.AdminConfig{
		MetricsAPIKey: *metricsAPIKey,
		Handle:        handle,
		Info: routers.ModelInfo{
			Model:            filepath.Base(*modelPath),
			Task:             string(task),
			Layout:           layout.String(),
			InputSource:      string(sourceKind),
			LabelHeader:      *labelHeader,
			ConfidenceHeader: *confidenceHeader,
			Labels:           labelCount,
		},
	}, log)
	routers.RegisterFilterRoutes(e, factory, upstreams, *chunkSize, log)

	go func() {
		if err := e.Start(*listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("Failed graceful shutdown", "error", err)
	}
	if recorder != nil {
		recorder.Shutdown()
	}
	if err := handle.Close(); err != nil {
		log.Errorw("Failed closing model", "error", err)
	}
}
