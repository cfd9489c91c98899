// Package lyrics implements the standalone lyric pipeline: a generation
// processor that turns intake form answers into a personalized Spanish lyric,
// and a delivery processor that sends the finished lyric plus its companion
// messages over WhatsApp once the delivery delay has passed.
package lyrics
