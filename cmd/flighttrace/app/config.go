package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	SessionID  int64
	OutputFile string
	Format     ImageFormat
	FontPath   string
	Width      int
	StartUs    *uint32
	EndUs      *uint32
	ArmedOnly  bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Width:  1200,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat string
	var startUs, endUs uint64
	flag.StringVar(&c.DBPath, "db", "", "Path to the flight log file")
	flag.Int64Var(&c.SessionID, "s", 1, "Session ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&c.FontPath, "font", "", "Path to a TTF font for labels (omit to render without text)")
	flag.IntVar(&c.Width, "w", 1200, "Chart width in pixels")
	flag.Uint64Var(&startUs, "from-us", 0, "Start of the loop-time range in microseconds")
	flag.Uint64Var(&endUs, "to-us", 0, "End of the loop-time range in microseconds")
	flag.BoolVar(&c.ArmedOnly, "armed-only", false, "Plot only frames captured while armed")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "from-us" {
			v := uint32(startUs)
			c.StartUs = &v
		}
		if f.Name == "to-us" {
			v := uint32(endUs)
			c.EndUs = &v
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Width < 100 {
		err = errors.New("chart width must be at least 100 pixels")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
