package ui

import (
	"image"
	"strconv"

	"yolodesk/internal/config"
	"yolodesk/internal/logging"
	"yolodesk/internal/ui/cwidget"
	"yolodesk/processing/imaging"
	"yolodesk/processing/trainer"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
)

const previewSize = 320

type TrainerApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config     *config.Config
	configPath string
	worker     *trainer.Worker
	watcher    *trainer.WeightsWatcher
	log        *logrus.Logger
	sink       *logging.Sink

	epochsInput *cwidget.Input[int]
	batchInput  *cwidget.Input[int]
	imgszInput  *cwidget.Input[int]
	deviceEntry *widget.Entry
	confInput   *cwidget.Input[float64]
	useWeights  *widget.Check

	datasetLabel *widget.Label
	weightsLabel *widget.Label
	fileLabel    *widget.Label
	preview      *canvas.Image

	epochLabel  *widget.Label
	progressBar *widget.ProgressBar
	metricsText *widget.Label
	logView     *cwidget.LogView

	progress *progressView
	logs     *logPump
}

type Options struct {
	Config     *config.Config
	ConfigPath string
	Worker     *trainer.Worker
	Watcher    *trainer.WeightsWatcher
	Log        *logrus.Logger
	Sink       *logging.Sink
}

func CreateApp(a fyne.App, opts Options) *TrainerApp {
	w := a.NewWindow("YOLO11 trainer")
	w.Resize(fyne.NewSize(1200, 760))

	return &TrainerApp{
		fyneApp:    a,
		mainWin:    w,
		config:     opts.Config,
		configPath: opts.ConfigPath,
		worker:     opts.Worker,
		watcher:    opts.Watcher,
		log:        opts.Log,
		sink:       opts.Sink,
		progress:   &progressView{},
		logs:       &logPump{},
	}
}

func (a *TrainerApp) Run() {
	a.mainWin.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("File",
			fyne.NewMenuItem("Dataset", a.selectDataset),
		),
	))

	sidebar := container.NewVBox(
		widget.NewLabelWithStyle("Training", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
		a.trainingSettings(),
		widget.NewSeparator(),
		a.weightsSettings(),
		widget.NewSeparator(),
		container.NewGridWithColumns(2,
			widget.NewButtonWithIcon("Train", theme.MediaPlayIcon(), a.startTraining),
			widget.NewButtonWithIcon("Abort", theme.MediaStopIcon(), a.worker.AbortTraining),
		),
	)

	a.logView = cwidget.NewLogView()

	split := container.NewHSplit(
		container.NewPadded(container.NewVScroll(sidebar)),
		container.NewVSplit(
			container.NewHSplit(
				container.NewPadded(a.progressPanel()),
				container.NewPadded(a.analysisPanel()),
			),
			container.NewPadded(a.logView),
		),
	)
	split.SetOffset(0.25)

	a.mainWin.SetContent(split)

	a.sink.Subscribe(a.logs.push)
	go a.logs.run(a.logView)
	go a.runProgressLoop()

	a.mainWin.SetCloseIntercept(a.shutdown)

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *TrainerApp) trainingSettings() fyne.CanvasObject {
	s := a.worker.Snapshot()

	a.epochsInput = cwidget.NewIntInput("Epochs", "Enter integer", s.Epochs)
	a.batchInput = cwidget.NewIntInput("Batch", "Enter integer, -1 for auto", s.Batch)
	a.imgszInput = cwidget.NewIntInput("Image size", "Enter integer", s.ImageSize)

	a.deviceEntry = widget.NewEntry()
	a.deviceEntry.SetPlaceHolder("cpu, 0, 0,1, mps")
	a.deviceEntry.SetText(s.Device)

	a.datasetLabel = widget.NewLabel(s.Dataset)
	a.datasetLabel.Wrapping = fyne.TextWrapBreak

	return container.NewVBox(
		a.epochsInput,
		a.batchInput,
		a.imgszInput,
		widget.NewLabelWithStyle("Device", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.deviceEntry,
		widget.NewLabelWithStyle("Dataset", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.datasetLabel,
	)
}

func (a *TrainerApp) weightsSettings() fyne.CanvasObject {
	s := a.worker.Snapshot()

	a.weightsLabel = widget.NewLabel(s.Weights)
	a.weightsLabel.Wrapping = fyne.TextWrapBreak

	a.useWeights = widget.NewCheck("Use loaded weights", a.useWeightsChanged)
	a.useWeights.Checked = a.worker.WeightsApplied()

	return container.NewVBox(
		widget.NewLabelWithStyle("Weights", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.weightsLabel,
		widget.NewButtonWithIcon("Load weights", theme.FolderOpenIcon(), a.selectWeights),
		a.useWeights,
	)
}

func (a *TrainerApp) progressPanel() fyne.CanvasObject {
	a.epochLabel = widget.NewLabel("0/0")
	a.progressBar = widget.NewProgressBar()
	a.progressBar.Max = 100
	a.metricsText = widget.NewLabel("")

	return container.NewVBox(
		widget.NewLabelWithStyle("Progress", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(widget.NewLabel("Epoch:"), a.epochLabel),
		a.progressBar,
		widget.NewLabelWithStyle("Metrics", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.metricsText,
	)
}

func (a *TrainerApp) analysisPanel() fyne.CanvasObject {
	s := a.worker.Snapshot()

	a.confInput = cwidget.NewFloatInput("Confidence threshold", "0.0 - 1.0", s.Confidence, 0, 1)

	a.fileLabel = widget.NewLabel(s.AnalysedFile)
	a.fileLabel.Wrapping = fyne.TextWrapBreak

	a.preview = canvas.NewImageFromImage(nil)
	a.preview.FillMode = canvas.ImageFillContain
	a.preview.SetMinSize(fyne.NewSize(previewSize, previewSize*3/4))
	a.showPreview(s.AnalysedFile)

	return container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Analysis", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			a.fileLabel,
			container.NewGridWithColumns(2,
				widget.NewButtonWithIcon("Select file", theme.FolderOpenIcon(), a.selectFileToAnalyse),
				widget.NewButtonWithIcon("Analyse", theme.SearchIcon(), a.analyseFile),
			),
			a.confInput,
		),
		nil, nil, nil,
		a.preview,
	)
}

// applyTrainingSettings forwards the training inputs to the worker. Nothing
// is forwarded when any field is invalid.
func (a *TrainerApp) applyTrainingSettings() bool {
	fields := []struct {
		field trainer.Field
		input *cwidget.Input[int]
	}{
		{trainer.FieldEpochs, a.epochsInput},
		{trainer.FieldBatch, a.batchInput},
		{trainer.FieldImageSize, a.imgszInput},
	}

	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := f.input.Value()
		if err != nil {
			a.log.Warn("Error in training parameters\n" + f.input.LabelText + ": " + err.Error())
			return false
		}
		values[i] = v
	}

	for i, f := range fields {
		if err := a.worker.Configure(f.field, strconv.Itoa(values[i])); err != nil {
			return false
		}
	}

	return a.worker.Configure(trainer.FieldDevice, a.deviceEntry.Text) == nil
}

func (a *TrainerApp) startTraining() {
	if !a.applyTrainingSettings() {
		return
	}

	if !a.worker.Busy() {
		a.clearProgress()
	}
	a.worker.StartTraining()
}

func (a *TrainerApp) setConfidenceThreshold() bool {
	conf, err := a.confInput.Value()
	if err != nil {
		a.log.Warn("Wrong confidence threshold. Value not set.\n" + err.Error())
		return false
	}

	return a.worker.Configure(trainer.FieldConfidence, strconv.FormatFloat(conf, 'f', -1, 64)) == nil
}

func (a *TrainerApp) analyseFile() {
	if a.setConfidenceThreshold() {
		a.worker.AnalyseImage()
	}
}

func (a *TrainerApp) useWeightsChanged(checked bool) {
	if checked {
		a.worker.LoadWeights()
	} else {
		a.worker.DiscardWeights()
	}
}

func (a *TrainerApp) selectDataset() {
	a.openFile(func(path string) {
		if a.worker.SetDatasetPath(path) == nil {
			a.datasetLabel.SetText(path)
		}
	})
}

func (a *TrainerApp) selectWeights() {
	a.openFile(func(path string) {
		if a.worker.SetWeightsPath(path) != nil {
			return
		}
		a.weightsLabel.SetText(path)

		if a.watcher != nil {
			if err := a.watcher.Watch(path); err != nil {
				a.log.WithError(err).Warn("Cannot watch weights file")
			}
		}

		if a.useWeights.Checked {
			a.worker.LoadWeights()
		}
	})
}

func (a *TrainerApp) selectFileToAnalyse() {
	a.openFile(func(path string) {
		if a.worker.SetAnalysedFilePath(path) == nil {
			a.fileLabel.SetText(path)
			a.showPreview(path)
		}
	})
}

func (a *TrainerApp) showPreview(path string) {
	img, _, err := imaging.Load(path)
	if err != nil {
		a.preview.Image = nil
		a.preview.Refresh()
		return
	}

	a.setPreview(imaging.Preview(img, previewSize*2, previewSize*2))
}

func (a *TrainerApp) setPreview(img image.Image) {
	a.preview.Image = img
	a.preview.Refresh()
}

func (a *TrainerApp) openFile(onPicked func(path string)) {
	dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			a.log.Warn(err.Error())
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()

		onPicked(path)
	}, a.mainWin)
}

func (a *TrainerApp) shutdown() {
	s := a.worker.Snapshot()

	a.config.SetTraining(config.TrainingConfig{
		DatasetPath: s.Dataset,
		Epochs:      s.Epochs,
		Batch:       s.Batch,
		ImageSize:   s.ImageSize,
		Device:      s.Device,
	})
	a.config.SetAnalysis(config.AnalysisConfig{
		FilePath:   s.AnalysedFile,
		Confidence: s.Confidence,
	})
	a.config.SetWeights(config.WeightsConfig{
		Path:       s.Weights,
		UseWeights: a.worker.WeightsApplied(),
	})

	if err := a.config.Save(a.configPath); err != nil {
		a.log.WithError(err).Warn("Cannot save settings")
	}

	if a.watcher != nil {
		a.watcher.Close()
	}
	a.worker.Close()
	a.sink.Close()
	a.logs.stop()

	a.mainWin.Close()
}
