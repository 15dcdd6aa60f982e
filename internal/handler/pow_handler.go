/*
Package handler provides HTTP handler functions for the sign-up Proof-of-Work exchange.
*/
package handler

import (
	"net/http"

	"chatdir/internal/pkg/errs"
	"chatdir/internal/pkg/logx"
	"chatdir/internal/pkg/req"
	"chatdir/internal/pkg/resp"
)

type PowVerifyInput struct {
	Nonce   string `json:"nonce"`
	Counter string `json:"counter"`
}

// HandlePowChallenge issues a nonce and the difficulty a proof must meet.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Pow == nil || !deps.Pow.Enabled() {
			resp.RespondSuccess(w, r, map[string]any{
				"nonce":      "",
				"difficulty": 0,
			})
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"nonce":      deps.Pow.GenerateNonce(),
			"difficulty": deps.Pow.Difficulty(),
		})
	}
}

// HandlePowVerify trades a solved challenge for a single-use Proof Token.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Pow == nil || !deps.Pow.Enabled() {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input PowVerifyInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Nonce == "" || input.Counter == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		proofToken, err := deps.Pow.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			logx.Warn("pow_verify: proof rejected", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": proofToken,
		})
	}
}
