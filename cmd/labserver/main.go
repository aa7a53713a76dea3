package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amcc/golab/ando"
	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/generichttp/ascii"
	"github.com/amcc/golab/lecroy"
	"github.com/amcc/golab/scpi"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/theckman/yacspin"
	"go.bug.st/serial/enumerator"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "labserver.yml"

	// EnvPrefix prefixes environment variables that override the config file,
	// e.g. LABSERVER_ADDR=:9000
	EnvPrefix = "LABSERVER_"

	k = koanf.New(".")
)

// envKeys maps environment variables to config keys
var envKeys = map[string]string{
	"ADDR":            "Addr",
	"MOCK":            "Mock",
	"LOGLEVEL":        "LogLevel",
	"PROLOGIX_ADDR":   "Prologix.Addr",
	"PROLOGIX_SERIAL": "Prologix.Serial",
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:     ":8000",
		LogLevel: "info",
		Nodes:    []Node{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) && !strings.Contains(err.Error(), "no such") {
			log.Fatal().Err(err).Msg("error loading config")
		}
	}
	k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKeys[strings.TrimPrefix(s, EnvPrefix)]
	}), nil)
}

func setuplogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func loadconf() Config {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal().Err(err).Msg("error decoding config")
	}
	return c
}

func root() {
	str := `labserver communicates with optical and cryogenic lab hardware and exposes
an HTTP interface to them.  This enables a server-client architecture, and the
clients can leverage the excellent HTTP libraries for any programming language.

Usage:
	labserver <command>

Commands:
	run
	help
	mkconf
	conf
	version
	ports
	idn <resource>
	raw <resource> <command>
	trace <resource> <channel> <file.csv|file.fits>
	zero <resource> <slot> <head>`
	fmt.Println(str)
}

func help() {
	str := `labserver is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration, the server will serve only /endpoints.

No two nodes can have the same Endpoint.  Endpoints may look like any variation
of "omc/laser" or "/omc/laser/*".

Addresses are VISA resource strings:
	GPIB0::5::INSTR               through the Prologix gateway in the config
	TCPIP::192.168.1.12::INSTR    raw SCPI on port 5025
	TCPIP::192.168.1.12::1234::SOCKET
	ASRL3::INSTR or /dev/ttyUSB0  serial, 9600 8N1 unless the type needs otherwise
	USB::0x1313::0x8078::INSTR    USB-TMC

Modules of an Ando AQ8204 or SRS SIM900 mainframe are separate nodes with the
same Addr and their own Slot.  Ando power meter heads and switch banks are
selected with Head.

Hardware and matching "type" fields, case insensitive, alphabetical by vendor:
- Agilent / Rigol
	> 33522A, DG5000 "function-generator" (Args: Dialect: agilent|rigol, Slot is the channel)
	> 53131A "counter"
	> 34401A "multimeter"
	> 8164A "lightwave" (routes carry the slot, e.g. /laser/1/wavelength)
	> 89410A "89410a" (Slot is the trace, 1 to 4)
	> FieldFox "fieldfox" (30 s timeout unless Timeout is given)
- Ando AQ8204 modules
	> "ando-attenuator", "ando-laser", "ando-powermeter", "ando-switch"
- FiberControl
	> MPC101 "mpc101"
- JDS Uniphase
	> HA9 "ha9"
- LeCroy
	> WaveRunner "lecroy"
- Perkin Elmer
	> 7280 "lockin"
- SRS SIM900 modules
	> "sim921", "sim922", "sim970"
- Switchino "switchino"
- Tektronix
	> AWG610 "awg610", AWG7101 "awg7101", AWG7000 series "awg7000"
	  or "tektronix-awg" with Args: Dialect: awg610|awg7101|awg7000
- Thorlabs
	> PM100D "pm100d"
	> LFLTM "lfltm"

Every node serves /raw, /idn, /reset and /lock in addition to its own routes.

Environment variables LABSERVER_ADDR, LABSERVER_MOCK, LABSERVER_LOGLEVEL,
LABSERVER_PROLOGIX_ADDR and LABSERVER_PROLOGIX_SERIAL override the file.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconf()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal().Err(err).Msg("creating config file")
	}
	defer f.Close()
	if err = yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal().Err(err).Msg("writing config file")
	}
}

func printconf() {
	c := loadconf()
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal().Err(err).Msg("encoding config")
	}
}

func pversion() {
	fmt.Printf("labserver version %v\n", Version)
}

func ports() {
	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		log.Fatal().Err(err).Msg("listing serial ports")
	}
	if len(list) == 0 {
		fmt.Println("no serial ports found")
		return
	}
	for _, p := range list {
		if p.IsUSB {
			fmt.Printf("%s\tUSB %s:%s serial %s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
		} else {
			fmt.Println(p.Name)
		}
	}
}

func run() {
	c := loadconf()
	lab := NewLab(c)
	mux, err := BuildMux(lab)
	if err != nil {
		lab.Close()
		log.Fatal().Err(err).Msg("building server")
	}
	srv := &http.Server{Addr: c.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info().Str("addr", c.Addr).Int("nodes", len(c.Nodes)).Bool("mock", c.Mock).Msg("now listening for requests")
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server stopped")
	}
	if err = lab.Close(); err != nil {
		log.Error().Err(err).Msg("closing instruments")
	}
}

// open connects to one instrument for the single shot commands
func open(addr string) (*Lab, *comm.Session) {
	lab := NewLab(loadconf())
	s, err := lab.Open(addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("opening instrument")
	}
	return lab, s
}

func spinner(msg string) *yacspin.Spinner {
	s, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("creating spinner")
	}
	return s
}

func idn(args []string) {
	if len(args) != 1 {
		log.Fatal().Msg("usage: labserver idn <resource>")
	}
	lab, s := open(args[0])
	defer lab.Close()
	str, err := (&scpi.SCPI{Session: s}).Identify()
	if err != nil {
		log.Fatal().Err(err).Msg("identify")
	}
	fmt.Println(str)
}

func raw(args []string) {
	if len(args) != 2 {
		log.Fatal().Msg("usage: labserver raw <resource> <command>")
	}
	lab, s := open(args[0])
	defer lab.Close()
	resp, err := ascii.Raw(&scpi.SCPI{Session: s}, args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("raw")
	}
	if resp != "" {
		fmt.Println(resp)
	}
}

func trace(args []string) {
	if len(args) != 3 {
		log.Fatal().Msg("usage: labserver trace <resource> <channel> <file.csv|file.fits>")
	}
	lab := NewLab(loadconf())
	defer lab.Close()
	s, err := lab.Open(args[0], comm.WithTimeout(lecroy.DefaultTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("opening scope")
	}
	scope, err := lecroy.New(s)
	if err != nil {
		log.Fatal().Err(err).Msg("configuring scope")
	}
	spin := spinner("waiting for trigger")
	spin.Start()
	wf, err := scope.SingleTrace(context.Background(), strings.ToUpper(args[1]), lecroy.DefaultTimeout)
	if err != nil {
		spin.StopFail()
		log.Fatal().Err(err).Msg("single trace")
	}
	spin.StopMessage(fmt.Sprintf("%d samples", wf.Len()))
	spin.Stop()

	f, err := os.Create(args[2])
	if err != nil {
		log.Fatal().Err(err).Msg("creating output file")
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(args[2]), ".fits") {
		err = wf.EncodeFITS(f)
	} else {
		err = wf.EncodeCSV(f)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("writing trace")
	}
}

func zero(args []string) {
	if len(args) != 3 {
		log.Fatal().Msg("usage: labserver zero <resource> <slot> <head>")
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("slot")
	}
	head, err := strconv.Atoi(args[2])
	if err != nil {
		log.Fatal().Err(err).Msg("head")
	}
	lab := NewLab(loadconf())
	defer lab.Close()
	mf, err := lab.Ando(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("opening mainframe")
	}
	pm := ando.NewPowerMeter(mf, slot, head)
	spin := spinner("zeroing")
	spin.Start()
	took, err := pm.Zero(context.Background())
	if err != nil {
		spin.StopFail()
		log.Fatal().Err(err).Msg("zero")
	}
	spin.StopMessage("zeroed in " + took.Round(time.Millisecond).String())
	spin.Stop()
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	setuplogging(k.String("LogLevel"))
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	case "ports":
		ports()
	case "idn":
		idn(args[2:])
	case "raw":
		raw(args[2:])
	case "trace":
		trace(args[2:])
	case "zero":
		zero(args[2:])
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
}
