package music

import (
	"fmt"
	"strings"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// maxStylePromptRunes is the longest style description the music provider
// accepts without truncating it server-side.
const maxStylePromptRunes = 120

const lyricSystemPrompt = `Eres un compositor profesional de canciones personalizadas en español.
Escribes letras cantables, con versos y un coro que se repite, adaptadas al género
musical que se te indique. Responde únicamente con la letra, sin títulos, sin
acordes y sin comentarios.`

func buildLyricPrompt(req *store.MusicRequest) string {
	var b strings.Builder
	b.WriteString("Escribe la letra de una canción personalizada.\n")
	if recipient := strings.TrimSpace(req.Recipient); recipient != "" {
		fmt.Fprintf(&b, "La canción es para: %s. Menciona su nombre en la letra.\n", recipient)
	}
	if genre := strings.TrimSpace(req.Genre); genre != "" {
		fmt.Fprintf(&b, "Género musical: %s.\n", genre)
	}
	if artist := strings.TrimSpace(req.Artist); artist != "" {
		fmt.Fprintf(&b, "Inspírate en el estilo de: %s, sin copiar ninguna de sus letras.\n", artist)
	}
	if anecdotes := strings.TrimSpace(req.Anecdotes); anecdotes != "" {
		fmt.Fprintf(&b, "Incluye estas anécdotas o detalles: %s.\n", anecdotes)
	}
	b.WriteString("La letra debe tener al menos dos versos y un coro que se repita.")
	return b.String()
}

const styleSystemPrompt = `Eres un productor musical. Describes estilos musicales para un
generador de música. Respondes únicamente con la descripción del estilo, en una sola
línea, sin comillas y sin comentarios.`

func buildStylePrompt(req *store.MusicRequest) string {
	var b strings.Builder
	b.WriteString("Describe en una sola frase el estilo musical para generar una canción.\n")
	if genre := strings.TrimSpace(req.Genre); genre != "" {
		fmt.Fprintf(&b, "Género: %s.\n", genre)
	}
	if artist := strings.TrimSpace(req.Artist); artist != "" {
		fmt.Fprintf(&b, "Artista de referencia: %s (no uses su nombre en la descripción).\n", artist)
	}
	if voice := strings.TrimSpace(req.Voice); voice != "" {
		fmt.Fprintf(&b, "Tipo de voz: %s.\n", voice)
	}
	fmt.Fprintf(&b, "La descripción debe tener como máximo %d caracteres.", maxStylePromptRunes)
	return b.String()
}

const styleRefineSystemPrompt = `Eres un productor musical. Comprimes descripciones de estilo
musical. Respondes únicamente con JSON con la forma {"prompt": "descripción"}.`

func buildRefinePrompt(draft string) string {
	return fmt.Sprintf(
		"Resume esta descripción de estilo musical en máximo %d caracteres, conservando el género y el tipo de voz. Responde con JSON {\"prompt\": \"...\"}:\n%s",
		maxStylePromptRunes, strings.TrimSpace(draft))
}
