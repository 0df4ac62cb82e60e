// Package competitive computes keyword gap, share of voice and competitor
// overviews from keyword rankings. Every function here is pure: rankings come
// in, derived results go out, and nothing is fetched.
package competitive
