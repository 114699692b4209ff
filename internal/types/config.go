package types

import "time"

// Config 应用配置
type Config struct {
	// Compiler is the LaTeX engine: pdflatex, xelatex or lualatex.
	Compiler       string        `mapstructure:"compiler" json:"compiler"`
	BibTeX         string        `mapstructure:"bibtex" json:"bibtex"`
	MaxAttempts    int           `mapstructure:"max_attempts" json:"max_attempts"`
	MinPasses      int           `mapstructure:"min_passes" json:"min_passes"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout" json:"compile_timeout"`
	// RotateTool selects the landscape post-processor: pdftk or pdfcpu.
	RotateTool    string        `mapstructure:"rotate_tool" json:"rotate_tool"`
	RotateTimeout time.Duration `mapstructure:"rotate_timeout" json:"rotate_timeout"`

	Width     float64 `mapstructure:"width" json:"width"`
	Height    float64 `mapstructure:"height" json:"height"`
	Margin    float64 `mapstructure:"margin" json:"margin"`
	Landscape bool    `mapstructure:"landscape" json:"landscape"`

	// StrictClass turns unsupported document classes into an error
	// instead of a warning.
	StrictClass bool `mapstructure:"strict_class" json:"strict_class"`
	// Concurrency bounds the number of parallel runs in batch mode.
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`

	LogFile  string `mapstructure:"log_file" json:"log_file"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// PageSpec builds the page spec described by the configuration.
func (c *Config) PageSpec() PageSpec {
	spec := PageSpec{
		Width:       c.Width,
		Height:      c.Height,
		Margin:      c.Margin,
		Orientation: OrientationPortrait,
	}
	if c.Landscape {
		spec.Orientation = OrientationLandscape
	}
	return spec
}
