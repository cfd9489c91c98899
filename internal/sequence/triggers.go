package sequence

// Trigger names used by the pipeline. Sequence definitions are keyed by
// trigger; enqueueing a trigger with no definition completes immediately.
const (
	TriggerNewLead        = "NuevoLead"
	TriggerLyricDelivered = "LetraEnviada"
	TriggerSongDelivered  = "CancionEnviada"
)
