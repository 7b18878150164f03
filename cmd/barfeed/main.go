// cmd/barfeed plays the charting platform side of a link for testing the
// indicator endpoint without a terminal.
//
// With BARFEED_FILE set it replays a CSV of "when,instrument,value..." rows.
// Otherwise it simulates a random-walk close price and computes every
// registered field (CLOSE, SMA, EMA, SMMA, RSI) from it.
//
// Config (env vars):
//
//	BARFEED_URL          link URL (default: "ws://localhost:5128/link")
//	BARFEED_FILE         CSV file to replay (default: simulate)
//	BARFEED_INSTRUMENT   simulated instrument (default: "EURUSD")
//	BARFEED_COUNT        simulated bars (default: 100)
//	BARFEED_INTERVAL_MS  delay between bars (default: 0)
//	LINK_TOTP_SECRET     shared secret when the server requires a code
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"indlink/internal/indicator"
	"indlink/internal/link"
	"indlink/internal/logger"
	"indlink/internal/model"
	"indlink/internal/series"
)

type bar struct {
	when       int64
	instrument string
	values     []string
}

func main() {
	log := logger.Init("barfeed", envOrDefault("LOG_LEVEL", "info"), envOrDefault("LOG_FORMAT", "console"))

	url := envOrDefault("BARFEED_URL", "ws://localhost:5128/link")
	interval := time.Duration(envIntOrDefault("BARFEED_INTERVAL_MS", 0)) * time.Millisecond

	hello := model.Hello{RemoteType: "barfeed", IndicatorName: "replay"}
	if secret := os.Getenv("LINK_TOTP_SECRET"); secret != "" {
		code, err := totp.GenerateCode(secret, time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("generate TOTP code")
		}
		hello.Code = code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c, err := link.Dial(ctx, url, hello)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("dial failed")
	}
	defer c.Close()

	log.Info().Str("url", url).Bool("blocking", c.Blocking()).Strs("fields", c.Fields()).Msg("registered")

	schema, err := indicator.NewSchema(c.Fields()...)
	if err != nil {
		log.Fatal().Err(err).Msg("server sent unusable fields")
	}

	var bars []bar
	if path := os.Getenv("BARFEED_FILE"); path != "" {
		bars, err = readBars(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("read bars")
		}
	} else {
		bars, err = simulate(envOrDefault("BARFEED_INSTRUMENT", "EURUSD"), envIntOrDefault("BARFEED_COUNT", 100), schema)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot simulate registered fields")
		}
	}

	for i, b := range bars {
		if err := c.SendBar(b.when, b.instrument, b.values); err != nil {
			log.Fatal().Err(err).Int("bar", i).Msg("send failed")
		}
		if c.Blocking() {
			awaitReply(c, log, b)
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}

	if err := c.Goodbye(); err != nil {
		log.Warn().Err(err).Msg("goodbye")
	}
	log.Info().Int("bars", len(bars)).Msg("done")
}

// awaitReply reads until the IND answering b, logging ERROR and WARNING
// packets along the way.
func awaitReply(c *link.ClientLink, log zerolog.Logger, b bar) {
	for {
		c.SetReadDeadline(time.Now().Add(10 * time.Second))
		p, err := c.ReadPacket()
		if err != nil {
			log.Fatal().Err(err).Msg("read reply")
		}
		switch p.Command {
		case model.PacketInd:
			log.Info().Int64("when", b.when).Str("instrument", b.instrument).Str("bar1", p.Arg(3)).Msg("prediction")
			return
		case model.PacketError:
			log.Error().Str("reason", p.Arg(0)).Int64("when", b.when).Msg("bar rejected")
			return
		default:
			log.Warn().Str("command", p.Command).Strs("args", p.Args).Msg("unexpected packet")
		}
	}
}

func readBars(path string) ([]bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'

	var bars []bar
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			continue
		}
		when, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			// header row
			continue
		}
		bars = append(bars, bar{when: when, instrument: strings.TrimSpace(rec[1]), values: rec[2:]})
	}
}

// simulate walks a close price up to ±5 pips per bar and computes every
// registered field from it. Bars are emitted once all windows are full.
func simulate(instrument string, count int, schema *indicator.Schema) ([]bar, error) {
	fields := schema.Fields()
	windows := make([]*series.Window, len(fields))
	for i, f := range fields {
		calc, err := series.Parse(f.Name)
		if err != nil {
			return nil, err
		}
		windows[i] = series.NewWindow(calc, f.Width)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := decimal.RequireFromString("1.10000")
	step := decimal.RequireFromString("0.00001")
	when := time.Now().Truncate(time.Minute).Add(-time.Duration(count) * time.Minute)

	bars := make([]bar, 0, count)
	for len(bars) < count {
		price = price.Add(step.Mul(decimal.NewFromInt(int64(rng.Intn(101) - 50))))
		px, _ := price.Float64()
		when = when.Add(time.Minute)

		ready := true
		for _, w := range windows {
			w.Update(px)
			ready = ready && w.Ready()
		}
		if !ready {
			continue
		}

		values := make([]string, 0, schema.Width())
		for _, w := range windows {
			for _, v := range w.Values() {
				values = append(values, decimal.NewFromFloat(v).Round(5).String())
			}
		}
		bars = append(bars, bar{when: when.Unix(), instrument: instrument, values: values})
	}
	return bars, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
