// Package whatsapp delivers outbound messages through a WhatsApp HTTP
// gateway. It also owns phone normalization: every number stored or messaged
// by the pipeline goes through NormalizePhone first.
package whatsapp
