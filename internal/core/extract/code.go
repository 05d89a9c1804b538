package extract

import (
	"fmt"
	"regexp"
	"strings"

	enry "github.com/go-enry/go-enry/v2"
)

// nonCodeTags are fence tags that carry prose or terminal output, not code.
var nonCodeTags = map[string]bool{
	"text":      true,
	"txt":       true,
	"plaintext": true,
	"plain":     true,
	"markdown":  true,
	"md":        true,
	"output":    true,
	"tree":      true,
}

type codeRule struct {
	category CodeCategory
	keywords *regexp.Regexp
}

// codeRules are checked in priority order.
var codeRules = []codeRule{
	{CodeInterface, regexp.MustCompile(`(?i)\b(interface|protocol|trait|abstract class|contract)\b`)},
	{CodeDTO, regexp.MustCompile(`(?i)(\bdtos?\b|data transfer object|\w+dto\b|\bpayload\b|\w+(request|response)\b)`)},
	{CodeService, regexp.MustCompile(`(?i)(\bservices?\b|\w+service\b|\busecase\b|\buse case\b)`)},
	{CodeController, regexp.MustCompile(`(?i)(\bcontrollers?\b|\w+controller\b|\bhandlers?\b|\broutes?\b|\bendpoints?\b|@restcontroller)`)},
	{CodeModel, regexp.MustCompile(`(?i)(\bmodels?\b|\bentit(?:y|ies)\b|@entity\b|\bdomain object\b)`)},
	{CodeConfig, regexp.MustCompile(`(?i)(\bconfig(?:uration)?\b|\bsettings\b|\.env\b|docker-compose|application\.ya?ml)`)},
	{CodeTest, regexp.MustCompile(`(?i)(\btests?\b|\bspec\b|\bdescribe\(|\bit\(|\bassert|\bexpect\()`)},
	{CodeSchema, regexp.MustCompile(`(?i)(\bschema\b|\bmigrations?\b|create table|\bddl\b)`)},
}

type frameworkSignature struct {
	name   string
	tokens []string
}

// frameworkSignatures are keyed by normalized language and checked in order.
var frameworkSignatures = map[string][]frameworkSignature{
	"typescript": {
		{"NestJS", []string{"@nestjs/", "@Injectable(", "@Controller("}},
		{"Angular", []string{"@angular/"}},
		{"Next.js", []string{"from 'next", `from "next`}},
		{"React", []string{"from 'react'", `from "react"`}},
		{"Express", []string{"from 'express'", `from "express"`, "require('express')", "express()"}},
		{"Fastify", []string{"fastify"}},
	},
	"java": {
		{"Spring Boot", []string{"org.springframework", "@RestController", "@SpringBootApplication", "@Service"}},
		{"Quarkus", []string{"io.quarkus"}},
		{"Jakarta EE", []string{"jakarta.ws.rs", "javax.ws.rs"}},
	},
	"kotlin": {
		{"Spring Boot", []string{"org.springframework", "@RestController"}},
		{"Ktor", []string{"io.ktor"}},
	},
	"python": {
		{"FastAPI", []string{"fastapi"}},
		{"Flask", []string{"from flask", "import flask"}},
		{"Django", []string{"django"}},
		{"Pydantic", []string{"pydantic"}},
	},
	"go": {
		{"Gin", []string{"gin-gonic/gin"}},
		{"Fiber", []string{"gofiber/fiber"}},
		{"Echo", []string{"labstack/echo"}},
		{"net/http", []string{`"net/http"`}},
	},
	"c#": {
		{"ASP.NET Core", []string{"Microsoft.AspNetCore", "[ApiController]"}},
		{"Entity Framework", []string{"EntityFrameworkCore", "DbContext"}},
	},
	"ruby": {
		{"Rails", []string{"Rails", "ActiveRecord", "ApplicationController"}},
	},
	"php": {
		{"Laravel", []string{`Illuminate\`}},
		{"Symfony", []string{`Symfony\`}},
	},
	"rust": {
		{"Actix Web", []string{"actix_web"}},
		{"Axum", []string{"axum::"}},
	},
}

const codeContextWindow = 200

func extractCodeTemplates(src *source) []CodeTemplate {
	templates := make([]CodeTemplate, 0)
	for _, f := range src.fences {
		if f.tag == "" || nonCodeTags[f.tag] || isDiagramTag(f.tag) || isTreeDrawing(f.content) {
			continue
		}
		language := normalizeLanguage(f.tag)
		h, hasHeading := src.headingBefore(f.startLine)
		category := classifyCode(h.text, src.contextBefore(f.startLine, codeContextWindow)+"\n"+f.content)

		title := fmt.Sprintf("%s %s", language, category)
		if hasHeading {
			title = stripNumbering(h.text)
		}
		templates = append(templates, CodeTemplate{
			ID:        fmt.Sprintf("code-%d", len(templates)+1),
			Title:     title,
			Content:   f.content,
			Language:  language,
			Category:  category,
			Framework: detectFramework(language, f.content),
		})
	}
	return templates
}

func isDiagramTag(tag string) bool {
	_, ok := diagramNotations[tag]
	return ok
}

// normalizeLanguage maps fence aliases ("ts", "py", "golang") to a lowercase
// linguist language name, keeping the raw tag when nothing is known about it.
func normalizeLanguage(tag string) string {
	if lang, ok := enry.GetLanguageByAlias(tag); ok {
		return strings.ToLower(lang)
	}
	if lang, _ := enry.GetLanguageByExtension("snippet." + tag); lang != "" {
		return strings.ToLower(lang)
	}
	return tag
}

func classifyCode(headingText, window string) CodeCategory {
	for _, text := range []string{headingText, window} {
		if text == "" {
			continue
		}
		for _, rule := range codeRules {
			if rule.keywords.MatchString(text) {
				return rule.category
			}
		}
	}
	return CodeInterface
}

func detectFramework(language, content string) *string {
	sigLang := language
	if sigLang == "javascript" || sigLang == "tsx" || sigLang == "jsx" {
		sigLang = "typescript"
	}
	for _, sig := range frameworkSignatures[sigLang] {
		for _, token := range sig.tokens {
			if strings.Contains(content, token) {
				name := sig.name
				return &name
			}
		}
	}
	return nil
}
