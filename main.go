package main

import (
	"os"

	"yolodesk/internal/config"
	"yolodesk/internal/logging"
	ui "yolodesk/internal/ui"
	"yolodesk/processing/detector"
	"yolodesk/processing/provider"
	"yolodesk/processing/provider/ultralytics"
	"yolodesk/processing/trainer"

	"fyne.io/fyne/v2/app"
	"github.com/sirupsen/logrus"
)

func main() {
	env, dotenv, err := config.LoadEnvironment()
	if err != nil {
		logrus.Fatalf("environment: %v", err)
	}

	log, sink := logging.New(logging.Options{Level: env.LogLevel, Dir: env.LogDir})
	if !dotenv {
		log.Debug("No .env file found, using process environment")
	}

	cfg := config.LoadConfigFile(env.ConfigPath)

	var p provider.Provider = ultralytics.New(env.PythonExe, log)
	if env.InferenceURL != "" {
		remote := detector.NewRemoteDetector(env.InferenceURL)
		p = provider.WithPredictor(p, remote)
		log.WithField("url", remote.URL()).Info("Using remote detection server for analysis")
	}

	fyneApp := app.NewWithID("io.yolodesk.trainer")

	worker, err := trainer.New(p, log,
		trainer.WithSession(sessionFromConfig(cfg)),
		trainer.WithBaseModel(env.BaseModel),
		trainer.WithProjectDir(env.ProjectDir),
		trainer.WithViewer(ui.NewResultViewer(fyneApp)),
	)
	if err != nil {
		log.WithError(err).Warn("Saved settings rejected, starting from defaults")
		worker, err = trainer.New(p, log,
			trainer.WithBaseModel(env.BaseModel),
			trainer.WithProjectDir(env.ProjectDir),
			trainer.WithViewer(ui.NewResultViewer(fyneApp)),
		)
		if err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
	}

	watcher, err := trainer.NewWeightsWatcher(worker, log)
	if err != nil {
		log.WithError(err).Warn("Weights file watching disabled")
		watcher = nil
	}

	if w := cfg.GetWeights(); w.UseWeights && w.Path != "" {
		worker.LoadWeights()
		if watcher != nil {
			watcher.Watch(w.Path)
		}
	}

	ui.CreateApp(fyneApp, ui.Options{
		Config:     cfg,
		ConfigPath: env.ConfigPath,
		Worker:     worker,
		Watcher:    watcher,
		Log:        log,
		Sink:       sink,
	}).Run()
}

func sessionFromConfig(cfg *config.Config) trainer.Session {
	t, a, w := cfg.GetTraining(), cfg.GetAnalysis(), cfg.GetWeights()

	return trainer.Session{
		Dataset:      t.DatasetPath,
		Epochs:       t.Epochs,
		Batch:        t.Batch,
		ImageSize:    t.ImageSize,
		Device:       t.Device,
		Weights:      w.Path,
		Confidence:   a.Confidence,
		AnalysedFile: a.FilePath,
	}
}
