// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

// canonicalPhrase returns the text/plain phrase for error codes that
// have one, mirroring the original engine's behavior of echoing a short
// diagnostic payload on synthesized error responses.
func canonicalPhrase(code Code) (string, bool) {
	switch code {
	case CodeBadOption:
		return "Bad Option", true
	case CodeNotFound:
		return "Not Found", true
	case CodeMethodNotAllowed:
		return "Method Not Allowed", true
	default:
		return "", false
	}
}

// Token extracts the Token option value from the PDU, or the zero Token
// if absent.
func (p *PDU) Token() Token {
	var tok Token
	p.WalkChecked(func(opt Option) bool {
		if opt.Number == OptionToken {
			tok = NewToken(opt.Value)
			return false
		}
		return true
	})
	return tok
}

func requestToken(pdu *PDU) Token {
	return pdu.Token()
}

// responseTypeFor picks ACK for a CON request and NON otherwise; a
// separate CON response is never synthesized for engine-built replies.
func responseTypeFor(request *PDU) MessageType {
	if request.Type == TypeConfirmable {
		return TypeAcknowledgement
	}
	return TypeNonConfirmable
}

// NewErrorResponse builds an error response PDU carrying code, echoing
// the request's Token (forced on) but never its Content-Type (forced
// off), plus every request option enabled in filter (the
// unknown-critical options flagged by CheckCritical), in their original
// order. When code has a canonical phrase, it is sent as a text/plain
// payload.
func (ctx *EndpointContext) NewErrorResponse(request *PDU, code Code, filter *UnknownOptionsFilter) *PDU {
	tok := requestToken(request)

	size := HeaderSize + 4 // fence-post slack
	phrase, hasPhrase := canonicalPhrase(code)
	if hasPhrase {
		size += len(phrase) + 2
	}
	size += tok.Len() + 2
	request.WalkChecked(func(opt Option) bool {
		if opt.Number != OptionToken && opt.Number != OptionContentType && filter.IsSet(opt.Number) {
			size += len(opt.Value) + 2
		}
		return true
	})

	resp := NewPDU(size, responseTypeFor(request), code, request.MessageID)
	ob := NewOptionBuilder(resp)

	if hasPhrase {
		ob.Add(OptionContentType, []byte{0}) // text/plain
	}
	if tok.Len() > 0 {
		ob.Add(OptionToken, tok.Bytes())
	}

	request.WalkChecked(func(opt Option) bool {
		if opt.Number == OptionToken {
			return true // already forced on above
		}
		if opt.Number == OptionContentType {
			return true // forced off
		}
		if filter.IsSet(opt.Number) {
			ob.Add(opt.Number, opt.Value)
		}
		return true
	})
	ob.Finish()

	if hasPhrase {
		resp.SetPayload([]byte(phrase))
	}
	return resp
}

// WellknownResponse builds the discovery reply: an ACK-type 2.05 Content
// response reusing the request's MessageID, carrying
// Content-Type=application/link-format and the request's Token, with the
// registry rendered into the remaining payload space by the configured
// renderer.
func (ctx *EndpointContext) WellknownResponse(request *PDU) *PDU {
	tok := requestToken(request)
	size := ctx.Config.MaxPDUSize
	resp := NewPDU(size, TypeAcknowledgement, CodeContent, request.MessageID)

	ob := NewOptionBuilder(resp)
	const contentFormatLinkFormat = 40
	ob.Add(OptionContentType, []byte{contentFormatLinkFormat})
	if tok.Len() > 0 {
		ob.Add(OptionToken, tok.Bytes())
	}
	ob.Finish()

	if ctx.Config.WellKnown == nil {
		return resp
	}
	remaining := resp.Data[len(resp.Data):cap(resp.Data)]
	n, err := ctx.Config.WellKnown.Render(ctx, remaining)
	if err != nil {
		return resp
	}
	resp.dataStart = len(resp.Data)
	resp.Data = resp.Data[:len(resp.Data)+n]
	return resp
}
