// Package webhook autentica, deduplica y despacha los webhooks entrantes de
// las plataformas POS.
//
// Flujo de dos fases: el handler HTTP verifica la firma y responde de forma
// sincrónica; el procesamiento del evento ocurre después en el Dispatcher y
// sus fallos no afectan el acuse ya enviado.
package webhook
