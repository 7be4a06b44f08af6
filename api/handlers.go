package api

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/app"
	"github.com/nspcc-dev/place-ratings/catalog"
	"github.com/nspcc-dev/place-ratings/relay"
	"github.com/nspcc-dev/place-ratings/score"
	"github.com/nspcc-dev/place-ratings/submit"
	"github.com/nspcc-dev/place-ratings/typeddata"
)

// AverageResponse is a place average.
type AverageResponse struct {
	// X100 is nil when the average is unavailable.
	X100  *int64 `json:"x100"`
	Value string `json:"value,omitempty"`
	Stars string `json:"stars"`
}

func newAverageResponse(a score.Average) AverageResponse {
	res := AverageResponse{Stars: a.String()}
	if d, ok := a.Decimal(); ok {
		raw := a.Raw()
		res.X100 = &raw
		res.Value = d.StringFixed(2)
	}
	return res
}

// PlaceResponse is a place with its average.
type PlaceResponse struct {
	catalog.Place
	Average AverageResponse `json:"average"`
}

func newPlaceResponse(v app.PlaceView) PlaceResponse {
	return PlaceResponse{Place: v.Place, Average: newAverageResponse(v.Average)}
}

// ListPlaces lists all places.
func (h *Handler) ListPlaces(c *gin.Context) {
	views := h.svc.Places(c.Request.Context())

	res := make([]PlaceResponse, len(views))
	for i := range views {
		res[i] = newPlaceResponse(views[i])
	}

	c.JSON(http.StatusOK, gin.H{"places": res})
}

// GetPlace returns single place.
func (h *Handler) GetPlace(c *gin.Context) {
	id, ok := placeID(c)
	if !ok {
		return
	}

	v, err := h.svc.Place(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, newPlaceResponse(v))
}

func parseIdentity(c *gin.Context, s string) (util.Uint160, bool) {
	if s == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return util.Uint160{}, false
	}

	id, err := address.StringToUint160(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity address"})
		return util.Uint160{}, false
	}

	return id, true
}

// GetMessage returns typed message the identity should sign to rate the
// place. Message expires at its deadline.
func (h *Handler) GetMessage(c *gin.Context) {
	id, ok := placeID(c)
	if !ok {
		return
	}

	identity, ok := parseIdentity(c, c.Query("identity"))
	if !ok {
		return
	}

	stars, err := strconv.ParseUint(c.Query("score"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid score"})
		return
	}

	msg, err := h.svc.PrepareRating(c.Request.Context(), identity, id, uint8(stars))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// RatingRequest is a rating signed by the identity.
type RatingRequest struct {
	// PublicKey is hex-encoded compressed public key of the identity.
	PublicKey string `json:"publicKey" binding:"required"`
	Score     uint8  `json:"score" binding:"required"`
	Nonce     uint64 `json:"nonce"`
	Deadline  uint64 `json:"deadline" binding:"required"`
	// Signature is hex-encoded signature of the message digest.
	Signature string `json:"signature" binding:"required"`
}

// RatingResponse describes accepted rating.
type RatingResponse struct {
	Attempt     string          `json:"attempt"`
	Transaction string          `json:"transaction"`
	Message     string          `json:"message,omitempty"`
	Average     AverageResponse `json:"average"`
}

func newRatingResponse(out submit.Outcome) RatingResponse {
	res := RatingResponse{
		Attempt:     out.Attempt.String(),
		Transaction: out.Receipt.Hash.StringLE(),
		Average:     newAverageResponse(out.Average),
	}
	if out.Message != nil {
		res.Message = out.Message.ID()
	}
	return res
}

// PostRating relays signed rating of the place.
func (h *Handler) PostRating(c *gin.Context) {
	id, ok := placeID(c)
	if !ok {
		return
	}

	var req RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	pub, err := keys.NewPublicKeyFromString(req.PublicKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid public key"})
		return
	}

	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature encoding"})
		return
	}

	out, err := h.svc.SubmitSigned(c.Request.Context(), relay.SignedAction{
		PublicKey: pub,
		Rating: typeddata.Rating{
			Identity:  pub.GetScriptHash(),
			SubjectID: id,
			Score:     req.Score,
			Nonce:     req.Nonce,
			Deadline:  req.Deadline,
		},
		Signature: sig,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, newRatingResponse(out))
}

// EntryResponse is a personal rating of the place.
type EntryResponse struct {
	Place   catalog.Place   `json:"place"`
	Stars   uint8           `json:"stars"`
	Average AverageResponse `json:"average"`
	Trend   app.Trend       `json:"trend,omitempty"`
}

// MyRatingsResponse is a list of personal ratings.
type MyRatingsResponse struct {
	Identity string          `json:"identity"`
	Entries  []EntryResponse `json:"entries"`
	Checked  int             `json:"checked"`
	// NextLimit is a limit to request more entries with, zero if all places
	// have been checked.
	NextLimit int `json:"nextLimit,omitempty"`
}

// MyRatings lists places rated by the identity.
func (h *Handler) MyRatings(c *gin.Context) {
	identity, ok := parseIdentity(c, c.Param("address"))
	if !ok {
		return
	}

	q := app.MyRatingsQuery{Identity: identity}

	var err error

	if q.Sort, err = app.ParseSortOrder(c.Query("sort")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if q.Filter, err = app.ParseFilter(c.Query("filter")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if l := c.Query("limit"); l != "" {
		if q.Limit, err = strconv.Atoi(l); err != nil || q.Limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	res := h.svc.MyRatings(c.Request.Context(), q)

	resp := MyRatingsResponse{
		Identity: address.Uint160ToString(identity),
		Entries:  make([]EntryResponse, len(res.Entries)),
		Checked:  res.Checked,
	}
	if res.More {
		resp.NextLimit = res.Checked + app.PageSize
	}

	for i, e := range res.Entries {
		resp.Entries[i] = EntryResponse{
			Place:   e.Place,
			Stars:   e.Stars,
			Average: newAverageResponse(e.Average),
			Trend:   e.Trend,
		}
	}

	c.JSON(http.StatusOK, resp)
}
