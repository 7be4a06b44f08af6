package ratings

// Names of the ratings contract methods.
const (
	MethodGetAverageX100 = "getAverageX100"
	MethodGetNonce       = "getNonce"
	MethodGetUserRating  = "getUserRating"
	MethodRatingOf       = "ratingOf"
	MethodUserRatings    = "userRatings"
	MethodVersion        = "version"
	MethodRatePlace      = "ratePlace"
	MethodRateWithSig    = "rateWithSig"
)

// EventPlaceRated is a name of the notification emitted on each accepted
// rating.
const EventPlaceRated = "PlaceRated"

// Exception messages thrown by the contract.
const (
	ErrorInvalidStars     = "invalid stars"
	ErrorInvalidPlace     = "invalid place"
	ErrorExpired          = "signature expired"
	ErrorInvalidNonce     = "invalid nonce"
	ErrorInvalidSignature = "invalid signature"
	ErrorWitnessFailed    = "witness check failed"
)
