package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// GiB is the unit used for persisted storage limits.
const GiB int64 = 1 << 30
