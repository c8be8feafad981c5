package cli

import (
	"io"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/ugorji/go/codec"
)

type ctxPairs []interface{}

func (ctxPairs) MapBySlice() {}

type logItem struct {
	Level int       `json:"level"`
	Msg   string    `json:"message"`
	Ctx   ctxPairs  `json:"ctx"`
	Time  time.Time `json:"time"`
}

type logOutput struct {
	Data logItem `json:"log"`
}

// One JSON object per line per log record.
func logHandler(wr io.Writer) log15.Handler {
	h := log15.FuncHandler(func(r *log15.Record) error {
		li := logItem{
			Level: int(r.Lvl),
			Msg:   r.Msg,
			Ctx:   r.Ctx,
			Time:  r.Time,
		}
		err := codec.NewEncoder(wr, &codec.JsonHandle{}).Encode(logOutput{
			Data: li,
		})
		wr.Write([]byte{'\n'})
		return err
	})
	return log15.LazyHandler(log15.SyncHandler(h))
}

/*
	The root logger for a command: terminal formatted, or serialized
	when asked, and filtered to info unless verbose.
*/
func newLogger(wr io.Writer, serialize, verbose bool) log15.Logger {
	var h log15.Handler
	if serialize {
		h = logHandler(wr)
	} else {
		h = log15.StreamHandler(wr, log15.TerminalFormat())
	}
	lvl := log15.LvlInfo
	if verbose {
		lvl = log15.LvlDebug
	}
	log := log15.New()
	log.SetHandler(log15.LvlFilterHandler(lvl, h))
	return log
}
