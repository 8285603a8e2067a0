package trainer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Field string

const (
	FieldDataset      Field = "data"
	FieldEpochs       Field = "epochs"
	FieldBatch        Field = "batch"
	FieldImageSize    Field = "imgsz"
	FieldDevice       Field = "device"
	FieldWeights      Field = "weights"
	FieldConfidence   Field = "conf"
	FieldAnalysedFile Field = "analysed_file"
)

// Session is the configuration a run is started with. Training reads a copy
// taken at start time.
type Session struct {
	Dataset      string
	Epochs       int `validate:"gte=1"`
	Batch        int `validate:"gte=-1,ne=0"`
	ImageSize    int `validate:"gte=32"`
	Device       string
	Weights      string
	Confidence   float64 `validate:"gte=0,lte=1"`
	AnalysedFile string
}

var validate = validator.New()

// structField maps a field to the Session member validated for it.
var structField = map[Field]string{
	FieldDataset:      "Dataset",
	FieldEpochs:       "Epochs",
	FieldBatch:        "Batch",
	FieldImageSize:    "ImageSize",
	FieldDevice:       "Device",
	FieldWeights:      "Weights",
	FieldConfidence:   "Confidence",
	FieldAnalysedFile: "AnalysedFile",
}

// with returns a copy of s with field set from its text form.
func (s Session) with(field Field, value string) (Session, error) {
	name, ok := structField[field]
	if !ok {
		return s, fmt.Errorf("%w: unknown field %q", ErrInvalidValue, field)
	}

	next := s
	text := strings.TrimSpace(value)

	switch field {
	case FieldEpochs, FieldBatch, FieldImageSize:
		n, err := strconv.Atoi(text)
		if err != nil {
			return s, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidValue, field, value)
		}
		switch field {
		case FieldEpochs:
			next.Epochs = n
		case FieldBatch:
			next.Batch = n
		default:
			next.ImageSize = n
		}

	case FieldConfidence:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(f) {
			return s, fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidValue, field, value)
		}
		next.Confidence = f

	case FieldDevice:
		next.Device = text
	case FieldDataset:
		next.Dataset = value
	case FieldWeights:
		next.Weights = value
	case FieldAnalysedFile:
		next.AnalysedFile = value
	}

	if err := validate.StructPartial(next, name); err != nil {
		return s, fmt.Errorf("%w: %s=%q out of range", ErrInvalidValue, field, value)
	}

	return next, nil
}

func (s Session) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}
