package nns

// DefaultName is a domain the ratings contract is registered under by
// default.
const DefaultName = "ratings.places"

// TXT is a type of NNS records storing contract addresses.
const TXT = 16

// MethodResolve is a name of the NNS method returning domain records.
const MethodResolve = "resolve"
