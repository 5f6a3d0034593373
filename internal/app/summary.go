package app

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func (app *Application) summaryHandler(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()

	from, ok := parseBound(args.Peek("from"))
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"invalid from datetime"}`)
		return
	}
	to, ok := parseBound(args.Peek("to"))
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"invalid to datetime"}`)
		return
	}

	reqCtx, cancel := app.requestContext()
	defer cancel()

	summary, err := app.services.Summary.GetSummary(reqCtx, from, to)
	if err != nil {
		app.logger.Error("failed to read summary", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"Summary unavailable"}`)
		return
	}

	body, err := json.Marshal(summary)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"Summary unavailable"}`)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

func (app *Application) purgeHandler(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := app.requestContext()
	defer cancel()

	if err := app.services.Summary.Purge(reqCtx); err != nil {
		app.logger.Error("failed to purge payments", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"Purge failed"}`)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString(`{"message":"All payments purged."}`)
}

// parseBound reads an optional RFC 3339 timestamp. An absent value is an
// open bound.
func parseBound(raw []byte) (*time.Time, bool) {
	if len(raw) == 0 {
		return nil, true
	}

	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return nil, false
	}
	return &t, true
}
