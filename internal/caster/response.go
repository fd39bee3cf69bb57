package caster

import (
	"bufio"
	"fmt"
)

// writeICYOk writes the NTRIP 1.0 success line - not valid HTTP, this is
// the ICECAST-derived status line v1 clients expect.
func writeICYOk(w *bufio.Writer) error {
	if _, err := w.WriteString("ICY 200 OK\r\n\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// writeV1Error writes one of the NTRIP 1.0 plain-text error lines.
func writeV1Error(w *bufio.Writer, message string) error {
	if _, err := fmt.Fprintf(w, "ERROR - %s\r\n", message); err != nil {
		return err
	}
	return w.Flush()
}

// writeSourcetableV1 writes a sourcetable response in the legacy format.
func writeSourcetableV1(w *bufio.Writer, body string) error {
	_, err := fmt.Fprintf(w, "SOURCETABLE 200 OK\r\nConnection: close\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s",
		len(body), body)
	if err != nil {
		return err
	}
	return w.Flush()
}

// writeHTTPStatus writes a minimal HTTP/1.1 status-line-only response,
// including the WWW-Authenticate challenge the NTRIP 2.0 spec requires
// on 401s.
func writeHTTPStatus(w *bufio.Writer, statusCode int, reason, mount string, unauthorized bool) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", statusCode, reason); err != nil {
		return err
	}
	if unauthorized {
		if _, err := fmt.Fprintf(w, "WWW-Authenticate: Basic realm=%q\r\n", mount); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("Connection: close\r\n\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// writeSourcetableV2 writes a sourcetable response in HTTP/1.1 form.
func writeSourcetableV2(w *bufio.Writer, body string) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body)
	if err != nil {
		return err
	}
	return w.Flush()
}

// writeV2SubscribeHeaders writes the headers that precede chunked (or
// raw, if configured non-chunked) GNSS data on an NTRIP 2.0 GET.
func writeV2SubscribeHeaders(w *bufio.Writer, chunked bool) error {
	if _, err := w.WriteString("HTTP/1.1 200 OK\r\nContent-Type: gnss/data\r\n"); err != nil {
		return err
	}
	if chunked {
		if _, err := w.WriteString("Transfer-Encoding: chunked\r\n"); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// writeV2SourceAccepted writes the headers an NTRIP 2.0 SOURCE uploader
// needs before it starts streaming its request body.
func writeV2SourceAccepted(w *bufio.Writer) error {
	if _, err := w.WriteString("HTTP/1.1 200 OK\r\nNtrip-Version: Ntrip/2.0\r\n\r\n"); err != nil {
		return err
	}
	return w.Flush()
}
