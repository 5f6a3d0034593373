package app

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var validate = validator.New()

func (app *Application) paymentsHandler(ctx *fasthttp.RequestCtx) {
	var req models.PaymentRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"Invalid JSON"}`)
		return
	}

	if err := validate.Struct(req); err != nil || !req.Amount.IsPositive() {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"correlationId and amount are required"}`)
		return
	}

	if !models.IsCentExact(*req.Amount) {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"amount must have at most two decimal places"}`)
		return
	}

	reqCtx, cancel := app.requestContext()
	defer cancel()

	if err := app.services.Payment.Send(reqCtx, req.CorrelationID, *req.Amount); err != nil {
		app.logger.Error("failed to enqueue payment",
			zap.String("correlationId", req.CorrelationID),
			zap.Error(err),
		)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"Payment not accepted"}`)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusAccepted)
	ctx.SetBodyString(`{"status":"enqueued"}`)
}
