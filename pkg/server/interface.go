/*
Package server implements msgpack IPC for the street name matcher.

The server reads a stream of msgpack encoded requests from stdin and writes
one msgpack encoded response per request to stdout. Requests are processed
synchronously, in order, with timing info included in compare responses.

# IPC

Every request carries an ID and an action. A comparison:

	{"id": "req_001", "a": "compare", "n1": "Av. Millán", "n2": "Avenida Millan"}

The server answers with the verdict:

	{"id": "req_001", "l": "Similar", "p": "Similar", "d": 2, "s": 0.87, "cs": 0.5, "cf": 1.12, "t": 145}

Adding "fb" (0 Different, 1 Similar, 2 Exact) applies a feedback update after
the verdict is computed:

	{"id": "req_002", "a": "compare", "n1": "Cno Lecoq", "n2": "Lecoq", "fb": 2}

"feedback" applies a label without a verdict and answers {"id", "status": "ok"}:

	{"id": "f1", "a": "feedback", "n1": "Cno Lecoq", "n2": "Camino Lecoq", "fb": 1}

Other actions:

	{"id": "h1", "a": "health"}
	{"id": "i1", "a": "info"}
	{"id": "g1", "a": "geolocate", "addr": "Avenida Millán 2500"}

Failures are reported with an error message and an HTTP-like status code:

	{"id": "req_003", "e": "invalid input: name1 and name2 are required", "c": 400}

msgpack keeps messages small and avoids text escaping issues for names with
accents or punctuation.
*/
package server

// Request is any IPC request. Fields unused by the action are ignored.
type Request struct {
	ID       string `msgpack:"id"`
	Action   string `msgpack:"a"`
	Name1    string `msgpack:"n1,omitempty"`
	Name2    string `msgpack:"n2,omitempty"`
	Feedback *int   `msgpack:"fb,omitempty"`
	Address  string `msgpack:"addr,omitempty"`
}

// CompareResponse is the verdict for one pair.
type CompareResponse struct {
	ID           string  `msgpack:"id"`
	Label        string  `msgpack:"l"`
	Predicted    string  `msgpack:"p"`
	EditDistance int     `msgpack:"d"`
	Similarity   float64 `msgpack:"s"`
	Cosine       float64 `msgpack:"cs"`
	Confidence   float64 `msgpack:"cf"`
	// TimeTaken is in microseconds.
	TimeTaken int64 `msgpack:"t"`
	// Error is set when feedback was applied but could not be saved.
	Error string `msgpack:"e,omitempty"`
}

// StatusResponse answers health and readiness.
type StatusResponse struct {
	ID     string `msgpack:"id,omitempty"`
	Status string `msgpack:"status"`
}

// InfoResponse describes the live model.
type InfoResponse struct {
	ID             string `msgpack:"id"`
	Classifier     string `msgpack:"classifier"`
	Policy         string `msgpack:"policy"`
	Dimension      int    `msgpack:"dim"`
	VocabularySize int    `msgpack:"vocab"`
	Updates        int    `msgpack:"updates"`
}

// GeolocateResponse is a resolved place.
type GeolocateResponse struct {
	ID        string  `msgpack:"id"`
	Name      string  `msgpack:"name"`
	Latitude  float64 `msgpack:"lat"`
	Longitude float64 `msgpack:"lon"`
}

// ErrorResponse holds basic error information for any failed request
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
