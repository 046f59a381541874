package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/echocat/slf4g"
	"github.com/echocat/slf4g/native"
	"github.com/echocat/slf4g/native/consumer"
	"github.com/echocat/slf4g/native/facade/value"
	"github.com/echocat/slf4g/native/formatter"

	"bandwatch/internal/config"
)

func main() {
	wf := &writerFacade{delegates: []io.Writer{os.Stderr}}
	consumer.Default = consumer.NewWriter(wf)

	lv := value.NewProvider(native.DefaultProvider)
	lv.Consumer.Formatter.Codec = value.MappingFormatterCodec{
		"text": formatter.NewText(),
		"json": formatter.NewJson(),
	}

	var a app
	a.logs = wf

	cmd := kingpin.New("bandwatch", "Watches a frequency band of an audio stream and reports energy events.")
	a.SetupConfiguration(cmd)

	cmd.Flag("log.level", "").
		SetValue(lv.Level)
	cmd.Flag("log.format", "").
		Default("text").
		SetValue(lv.Consumer.Formatter)
	cmd.Flag("log.color", "").
		Default("always").
		SetValue(lv.Consumer.Formatter.ColorMode)
	cmd.Flag("log.file", "Write logs to this file instead of stderr. The viewer discards logs unless this is set.").
		Envar("BW_LOG_FILE").
		StringVar(&a.logFile)

	cmd.Command("run", "Process the configured source until it ends or the process is interrupted.").
		Default().
		Action(func(*kingpin.ParseContext) error {
			return a.run()
		})
	cmd.Command("design", "Print the band-pass sections and their response.").
		Action(func(*kingpin.ParseContext) error {
			return a.design(os.Stdout)
		})
	cmd.Command("config", "Print the effective configuration as YAML.").
		Action(func(*kingpin.ParseContext) error {
			c, err := a.configuration()
			if err != nil {
				return err
			}
			return c.SaveTo(os.Stdout)
		})

	kingpin.MustParse(cmd.Parse(os.Args[1:]))
}

type app struct {
	ConfigurationFile string

	configFromFlags config.Config
	logFile         string
	logs            *writerFacade
}

func (this *app) SetupConfiguration(using config.FlagHolder) {
	this.configFromFlags.SetupConfiguration(using)

	using.Flag("configuration", "YAML file with the configuration. Flags override its values.").
		Short('c').
		Envar("BW_CONFIGURATION").
		StringVar(&this.ConfigurationFile)
}

// configuration resolves flags over file over defaults and validates the result.
func (this *app) configuration() (config.Config, error) {
	var fromFile config.Config
	if fn := this.ConfigurationFile; fn != "" {
		var err error
		if fromFile, err = config.LoadFile(fn); err != nil {
			return config.Config{}, err
		}
	}

	c, err := config.Merge(this.configFromFlags, fromFile, config.New())
	if err != nil {
		return config.Config{}, err
	}
	if err := c.Validate(); err != nil {
		return config.Config{}, err
	}
	return c, nil
}

// redirectLogs sends logs to the configured file, or drops them when discard
// is set and no file is configured. The returned func restores stderr.
func (this *app) redirectLogs(discard bool) (func(), error) {
	if this.logFile == "" {
		if !discard {
			return func() {}, nil
		}
		this.logs.set([]io.Writer{io.Discard})
		return func() { this.logs.set([]io.Writer{os.Stderr}) }, nil
	}

	f, err := os.OpenFile(this.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %q: %w", this.logFile, err)
	}
	this.logs.set([]io.Writer{f})
	return func() {
		this.logs.set([]io.Writer{os.Stderr})
		if err := f.Close(); err != nil {
			log.WithError(err).Warn("Cannot close log file.")
		}
	}, nil
}

type writerFacade struct {
	delegates []io.Writer
	mutex     sync.RWMutex
}

func (this *writerFacade) Write(p []byte) (n int, err error) {
	this.mutex.RLock()
	defer this.mutex.RUnlock()

	for i, w := range this.delegates {
		var nn int
		if nn, err = w.Write(p); err != nil {
			return n, err
		}
		if i == 0 {
			n = nn
		} else if n != nn {
			return n, fmt.Errorf("the previous writer wrote %d, but the current one wrote %d bytes", n, nn)
		}
	}

	return
}

func (this *writerFacade) set(next []io.Writer) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.delegates = next
}
