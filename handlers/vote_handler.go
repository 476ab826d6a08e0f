package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/talent-vote/services"
)

type VoteHandler struct {
	voteService services.VoteService
}

func NewVoteHandler(vs services.VoteService) *VoteHandler {
	return &VoteHandler{
		voteService: vs,
	}
}

// isFormPost: браузерная форма без JS, ответом будет редирект.
func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

func parseFormInt(r *http.Request, field string) (int64, error) {
	raw := strings.TrimSpace(r.PostFormValue(field))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s must be an integer", field)
	}
	return v, nil
}

func readVoteForm(w http.ResponseWriter, r *http.Request) (services.SubmitVoteInput, error) {
	var input services.SubmitVoteInput
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBodyBytes))
	if err := r.ParseMultipartForm(int64(maxBodyBytes)); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return input, fmt.Errorf("invalid form body: %w", err)
	}

	var err error
	if input.VoteCount, err = parseFormInt(r, "vote_count"); err != nil {
		return input, err
	}
	if input.UnitPrice, err = parseFormInt(r, "unit_price"); err != nil {
		return input, err
	}
	input.EventID = r.PostFormValue("event_id")
	input.ParticipantID = r.PostFormValue("participant_id")
	input.TournamentID = r.PostFormValue("tournament_id")
	input.PhaseID = r.PostFormValue("phase_id")
	input.CallbackURL = r.PostFormValue("callback_url")
	return input, nil
}

// SubmitVote godoc
// @Summary Покупка голосов: запись платежа и транзакция шлюза
// @Description Цена голоса берётся из события, голосовать можно только за активную фазу.
// @Description JSON-клиент получает 201 с checkout_url, HTML-форма получает 303 на страницу оплаты.
// @Tags votes
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param input body services.SubmitVoteInput true "Параметры голосования"
// @Success 201 {object} services.VoteCheckout
// @Success 303 "Redirect to checkout"
// @Failure 400 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/votes [post]
func (h *VoteHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	form := isFormPost(r)

	var input services.SubmitVoteInput
	var err error
	if form {
		input, err = readVoteForm(w, r)
	} else {
		err = readJSON(w, r, &input)
	}
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Страница, с которой пришёл голос, если клиент не передал её явно.
	if strings.TrimSpace(input.CallbackURL) == "" {
		input.CallbackURL = r.Referer()
	}

	checkout, err := h.voteService.SubmitVote(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if form {
		http.Redirect(w, r, checkout.CheckoutURL, http.StatusSeeOther)
		return
	}

	if err := writeJSON(w, http.StatusCreated, checkout, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
