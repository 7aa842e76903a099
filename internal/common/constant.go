package common

// AuthorizationHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on inbound requests.
const AuthorizationHeaderName = "authorization"

// BearerPrefix prefixes the token value in the authorization metadata.
const BearerPrefix = "Bearer "

// SecretKeySize is the size in bytes of generated signing-key material
// (256 bits).
const SecretKeySize = 32
