// Package http implements the booking backend client the session manager and
// booking window call through.
//
// The client speaks to the following endpoints:
//   - POST /auth/preflight {"email"}: organization, identity providers and
//     whether a password is required.
//   - POST /auth/login {"email","password"} and GET /auth/verify/{id}: issue
//     {"accessToken","refreshToken"} or, on legacy backends, {"jwt"}.
//   - POST /auth/refresh {"refreshToken"}: exchanges a single-use refresh token
//     for a new pair.
//   - POST /auth/logout: best-effort server side sign-out.
//   - GET /users/self, GET /settings, GET /preferences: identity, organization
//     policy and user preferences as {"name","value"} pairs.
//   - GET /bookings, POST /booking/precheck/, POST /booking, DELETE /booking/{id}:
//     the user's bookings.
//   - GET /locations, GET /locations/{id}, POST /locations/{id}/spaces/availability.
//
// Access-token expiry is read from the token's exp claim. 401 maps to
// application.ErrUnauthorized, 403 to application.ErrForbidden, 404 to
// application.ErrNotFound and other client errors to *application.BackendError
// carrying the X-Error-Code value. Transport failures, server errors, 408 and
// 429 map to application.ErrUnavailable.
package http
