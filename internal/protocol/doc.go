// Package protocol builds and classifies the byte frames of the Quansheng
// UV-K5 serial command set.
//
// The command set is undocumented; the layouts here are the ones recovered
// from working captures. The primary frame is
//
//	[OPCODE][H0][H1][H2][ADDR_L][ADDR_H][LEN][PAD]    (reads, controls)
//	[OPCODE][H0][H1][H2][ADDR_L][ADDR_H][LEN][DATA..] (writes)
//
// with the constant header AB CD 01 and a little-endian 16-bit address.
// Because not every firmware revision answers the primary layout, the
// package also builds the known alternates: a header-less 4-byte minimal
// read, a preamble-prefixed form, and the bootloader write frame with a
// 32-bit flash offset. Higher layers pick which variant to send; this
// package only guarantees the byte layouts.
//
// Responses carry no reliable framing at all. Classify sorts a raw
// response into one of four shapes (empty, short ack, headered payload,
// raw payload) from its length alone, and Payload/PayloadAt extract the
// probable data bytes. Callers that need a different starting offset can
// ask for it directly; the classification is a heuristic, not a parser.
package protocol
