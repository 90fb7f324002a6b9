package h1

// reasonPhrases mirrors RFC 7231 plus the WebDAV extension set.
var reasonPhrases = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	103: "Early Hints",
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",
	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	402: "Payment Required",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	407: "Proxy Authentication Required",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	416: "Range Not Satisfiable",
	417: "Expectation Failed",
	418: "I'm a teapot",
	421: "Misdirected Request",
	425: "Too Early",
	426: "Upgrade Required",
	429: "Too Many Requests",
	431: "Request Header Fields Too Large",
	451: "Unavailable For Legal Reasons",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
	506: "Variant Also Negotiates",
	510: "Not Extended",
	511: "Network Authentication Required",
}

// davReasonPhrases extends reasonPhrases with the WebDAV codes (RFC 4918).
var davReasonPhrases = map[int]string{
	102: "Processing",
	207: "Multi-Status",
	208: "Already Reported",
	226: "IM Used",
	422: "Unprocessable Entity",
	423: "Locked",
	424: "Failed Dependency",
	507: "Insufficient Storage",
	508: "Loop Detected",
}

// ReasonPhrase returns the well-known reason phrase for code, consulting
// the WebDAV set too when dav is true, and clamping code to 500 first if
// it falls outside 100..599.
func ReasonPhrase(code int, dav bool) string {
	code = ClampStatus(code)
	if p, ok := reasonPhrases[code]; ok {
		return p
	}
	if dav {
		if p, ok := davReasonPhrases[code]; ok {
			return p
		}
	}
	return "Unknown"
}

// ClampStatus clamps a status code to 500 if it falls outside 100..599.
func ClampStatus(code int) int {
	if code < 100 || code > 599 {
		return 500
	}
	return code
}
