package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Maintenance Triage API",
    "description": "Tenant call handling, issue classification and technician dispatch",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/api/calls": {"post": {"tags": ["calls"], "summary": "Start a call", "responses": {"201": {"description": "greeting turn"}}}},
    "/api/calls/{id}": {"get": {"tags": ["calls"], "summary": "Call details", "responses": {"200": {"description": "call session"}}}},
    "/api/calls/{id}/utterances": {"post": {"tags": ["calls"], "summary": "Send a tenant utterance", "responses": {"200": {"description": "turn result"}, "400": {"description": "empty utterance"}, "404": {"description": "unknown call"}, "409": {"description": "call closed"}}}},
    "/api/calls/{id}/hangup": {"post": {"tags": ["calls"], "summary": "Hang up a call", "responses": {"200": {"description": "ok"}}}},
    "/api/tickets": {"get": {"tags": ["tickets"], "summary": "List tickets", "responses": {"200": {"description": "tickets"}}}},
    "/api/tickets/{id}": {"get": {"tags": ["tickets"], "summary": "Ticket with notifications", "responses": {"200": {"description": "ticket"}}}},
    "/api/tickets/{id}/dispatch": {"post": {"tags": ["dispatch"], "summary": "Dispatch a ticket", "responses": {"200": {"description": "dispatch result"}}}},
    "/api/tickets/{id}/status": {"patch": {"tags": ["tickets"], "summary": "Change ticket status", "responses": {"200": {"description": "ticket"}}}},
    "/api/tickets/{id}/escalation": {"get": {"tags": ["escalation"], "summary": "Escalation check", "responses": {"200": {"description": "rules that fired"}}}},
    "/api/dispatch/batch": {"post": {"tags": ["dispatch"], "summary": "Dispatch several tickets", "responses": {"200": {"description": "results in input order"}}}},
    "/api/technicians": {"get": {"tags": ["technicians"], "summary": "List technicians", "responses": {"200": {"description": "technicians"}}}},
    "/api/technicians/{id}": {"put": {"tags": ["technicians"], "summary": "Create or update a technician", "responses": {"200": {"description": "technician"}}}},
    "/api/technicians/{id}/release": {"post": {"tags": ["technicians"], "summary": "Release a technician", "responses": {"200": {"description": "completed ticket"}}}},
    "/api/escalations/sweep": {"post": {"tags": ["escalation"], "summary": "Run one escalation sweep", "responses": {"200": {"description": "escalated tickets"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
