package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/theckman/yacspin"

	"wavedma/config"
	"wavedma/core"
	"wavedma/host/decode"
	"wavedma/host/httpapi"
	"wavedma/host/mcu"
	"wavedma/host/monitor"
	"wavedma/host/recorder"
	"wavedma/host/serial"
	"wavedma/sim"
	"wavedma/tmc"
)

var (
	// Version is the version number. Typically injected via ldflags.
	Version = "0.3"

	// ConfigFileName is read by every command; WAVEDMA_CONFIG overrides it.
	ConfigFileName = config.DefaultFileName
)

func root() {
	str := `wavedma-host drives a wavedma board, real or simulated.

Usage:
	wavedma-host <command> [flags]

Commands:
	sim
	serve
	monitor
	send-tmc
	decode
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `Configuration is read from wavedma.yml (or $WAVEDMA_CONFIG) layered over the
built-in defaults of the reference board; "mkconf" writes the defaults out.

	sim [-updates N] [-db path]
		boot the board on the simulator and run N update events of the
		trigger timer, printing each diagnostic report
	serve [-addr :8000] [-db path]
		run the simulator in real time behind an HTTP API:
		GET /status, GET /snapshot, GET /table, POST /start, POST /stop,
		and GET /history when recording
	monitor [-port dev] [-db path] [-addr :8000]
		open the board's telemetry link, log its snapshots and optionally
		record them and serve the HTTP API against the real board
	send-tmc [-port dev]
		write the driver GCONF frame once to a UART adapter
	decode [-hex] [file]
		decode captured telemetry bytes from file or stdin, one line per
		frame`
	fmt.Println(str)
}

func loadConfig() config.Config {
	if env := os.Getenv("WAVEDMA_CONFIG"); env != "" {
		ConfigFileName = env
	}
	c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func mkconf() {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := config.Write(f, config.Default()); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	if err := config.Write(os.Stdout, loadConfig()); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("wavedma-host version %v\n", Version)
}

func openRecorder(path, source string) *recorder.Recorder {
	if path == "" {
		return nil
	}
	rec, err := recorder.Open(path, source)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("recording snapshots to %s, session %d", path, rec.Session())
	return rec
}

func runSim(args []string) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("sim", flag.ExitOnError)
	updates := fs.Int("updates", 20000, "trigger timer update events to simulate")
	db := fs.String("db", cfg.HTTP.Database, "record snapshots to this SQLite file")
	fs.Parse(args)

	core.SetDebugWriter(func(s string) { log.Print(s) })
	bench, err := sim.NewBench(cfg, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer bench.Close()

	if rec := openRecorder(*db, "sim"); rec != nil {
		defer rec.Close()
		bench.Machine().Do(func() {
			bench.Board().Diagnostics().OnReport(func(s core.Snapshot) {
				if err := rec.Record(s); err != nil {
					log.Printf("record snapshot: %v", err)
				}
			})
		})
	}

	m := bench.Machine()
	timer := cfg.Timer.Name
	m.Advance(uint64(*updates) * m.Period(timer))

	st, err := bench.Status()
	if err != nil {
		log.Fatal(err)
	}
	s, _ := bench.Snapshot()
	fmt.Printf("%d updates of %s in %v simulated\n", m.Updates(timer), timer,
		time.Duration(m.Cycles()*uint64(time.Second)/uint64(cfg.Clock.SysclkHz)))
	fmt.Printf("channel=%s timer=%s transfer_errors=%d\n", st.Channel, st.Timer, st.Errors)
	fmt.Println(core.FormatSnapshot(s))
}

func serve(args []string) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.HTTP.Addr, "listen address")
	db := fs.String("db", cfg.HTTP.Database, "record snapshots to this SQLite file")
	step := fs.Duration("step", 10*time.Millisecond, "simulation step")
	fs.Parse(args)

	core.SetDebugWriter(func(s string) { log.Print(s) })
	bench, err := sim.NewBench(cfg, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer bench.Close()

	var history httpapi.History
	if rec := openRecorder(*db, "sim"); rec != nil {
		defer rec.Close()
		history = rec
		bench.Machine().Do(func() {
			bench.Board().Diagnostics().OnReport(func(s core.Snapshot) { rec.Record(s) })
		})
	}

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		if err := bench.Run(ctx, *step); err != nil && ctx.Err() == nil {
			log.Printf("simulation stopped: %v", err)
		}
	}()
	listen(ctx, *addr, httpapi.SetupHTTP(bench, history))
}

func runMonitor(args []string) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	port := fs.String("port", cfg.Serial.Port, "serial device of the telemetry link")
	db := fs.String("db", cfg.HTTP.Database, "record snapshots to this SQLite file")
	addr := fs.String("addr", "", "serve the HTTP API on this address")
	every := fs.Duration("log-every", 5*time.Second, "minimum interval between logged snapshots")
	fs.Parse(args)

	scfg := serial.FromConfig(cfg.Serial)
	scfg.Device = *port
	p, err := openWithSpinner(scfg, time.Duration(cfg.Serial.RetrySeconds)*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	p.Flush()
	dev := mcu.New(p)
	defer dev.Close()

	id, err := dev.Identify()
	if err != nil {
		log.Fatalf("identify: %v", err)
	}
	log.Printf("board %s on %s: %s, %s steps at %s Hz", id.Config["MCU"], *port,
		id.Version, id.Config["TABLE_STEPS"], id.Config["TIMER_FREQ"])

	mon := monitor.New(log.Default(), *every)
	var history httpapi.History
	if rec := openRecorder(*db, *port); rec != nil {
		defer rec.Close()
		mon.AddSink(rec)
		history = rec
	}
	dev.OnSnapshot(mon.Observe)

	st, err := dev.Status()
	if err != nil {
		log.Fatalf("board did not answer: %v", err)
	}
	log.Printf("board: running=%v channel=%s timer=%s transfer_errors=%d", st.Running, st.Channel, st.Timer, st.Errors)

	ctx, cancel := signalContext()
	defer cancel()
	if *addr != "" {
		listen(ctx, *addr, httpapi.SetupHTTP(dev, history))
	} else {
		<-ctx.Done()
	}
	seen, _, _ := mon.Stats()
	log.Printf("%d snapshots received, %d frames dropped", seen, dev.Dropped())
}

func sendTMC(args []string) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("send-tmc", flag.ExitOnError)
	port := fs.String("port", cfg.Serial.Port, "serial device wired to the driver UART")
	fs.Parse(args)

	drv := cfg.Driver
	scfg := serial.DefaultConfig(*port)
	scfg.Baud = int(drv.Baud)
	p, err := openWithSpinner(scfg, time.Duration(cfg.Serial.RetrySeconds)*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	g := tmc.GConf{PDNDisable: drv.PDNDisable, MstepRegister: drv.MstepRegister, MultistepFilt: drv.MultistepFilt}
	if err := tmc.SendGConf(p, drv.Address, g); err != nil {
		log.Fatal(err)
	}
	frame := tmc.WriteFrame(drv.Address, tmc.RegGCONF, g.Value())
	fmt.Printf("sent GCONF=0x%08X to driver %d: % X\n", g.Value(), drv.Address, frame)
}

// openWithSpinner retries opening the port while a spinner shows progress.
func openWithSpinner(cfg *serial.Config, wait time.Duration) (serial.Port, error) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " opening " + cfg.Device,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return serial.OpenWithRetry(serial.Open, cfg, wait, nil)
	}
	spinner.Start()
	p, err := serial.OpenWithRetry(serial.Open, cfg, wait, func(attempt int, err error) {
		spinner.Message(fmt.Sprintf("attempt %d: %v", attempt, err))
	})
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		return nil, err
	}
	spinner.StopMessage("connected")
	spinner.Stop()
	return p, nil
}

func runDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	isHex := fs.Bool("hex", false, "input is a hex dump")
	fs.Parse(args)

	in := io.Reader(os.Stdin)
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		log.Fatal(err)
	}
	if *isHex {
		data, err = hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			log.Fatalf("bad hex input: %v", err)
		}
	}
	frames, dropped := decode.Stream(data)
	for _, f := range frames {
		if f.Ack {
			fmt.Printf("seq %2d ack\n", f.Seq)
			continue
		}
		for _, m := range f.Messages {
			fmt.Printf("seq %2d %s\n", f.Seq, m)
		}
		if f.Err != "" {
			fmt.Printf("seq %2d error: %s\n", f.Seq, f.Err)
		}
	}
	fmt.Printf("%d frames, %d framing errors\n", len(frames), dropped)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// listen serves the board routes under a logging root router until ctx is
// done.
func listen(ctx context.Context, addr string, board chi.Router) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Mount("/", board)

	srv := &http.Server{Addr: addr, Handler: root}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	log.Println("now listening for requests at", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	cmd := strings.ToLower(args[1])
	rest := args[2:]
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	case "sim":
		runSim(rest)
	case "serve":
		serve(rest)
	case "monitor":
		runMonitor(rest)
	case "send-tmc":
		sendTMC(rest)
	case "decode":
		runDecode(rest)
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}
