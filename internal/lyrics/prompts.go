package lyrics

import (
	"fmt"
	"strings"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

const generationSystemPrompt = `Eres un compositor profesional de canciones personalizadas en español.
Escribes letras emotivas con estructura de verso y coro, pensadas para cantarse.
Responde únicamente con la letra de la canción, sin títulos, sin acordes y sin comentarios.`

// buildGenerationPrompt renders the user prompt from the intake form answers.
func buildGenerationPrompt(req *store.LyricRequest) string {
	var b strings.Builder
	b.WriteString("Escribe la letra de una canción personalizada.\n")
	if purpose := strings.TrimSpace(req.Purpose); purpose != "" {
		fmt.Fprintf(&b, "Motivo de la canción: %s.\n", purpose)
	}
	if name := strings.TrimSpace(req.IncludeName); name != "" {
		fmt.Fprintf(&b, "La canción debe mencionar el nombre: %s.\n", name)
	}
	if anecdotes := strings.TrimSpace(req.Anecdotes); anecdotes != "" {
		fmt.Fprintf(&b, "Incluye estas anécdotas o detalles: %s.\n", anecdotes)
	}
	b.WriteString("La letra debe tener al menos dos versos y un coro que se repita.")
	return b.String()
}
