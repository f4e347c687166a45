// Package emitter delivers lineage events to the Correlator lineage endpoint.
//
// Send serializes a batch of run events as a JSON array, performs exactly one
// HTTP POST and classifies the response:
//
//   - 200/204 are successes and 207 is a partial success; both return nil and
//     are reported through the logger.
//   - Every other outcome returns a *DeliveryError whose Kind tells validation
//     rejections, rate limiting, server failures and transport failures apart.
//
// The package never retries and never buffers. Callers that must not fail
// because of lineage problems wrap Send in their own isolation boundary.
package emitter
