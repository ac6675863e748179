// Package tir reads the typed intermediate form handed over by the front
// end: a YAML document with type declarations, externs and function bodies
// without reference counting.
//
//	types:
//	  - struct: Box
//	    fields: [{name: v, type: str}]
//	  - enum: List
//	    variants:
//	      - {name: Nil}
//	      - {name: Cons, fields: [{name: head, type: int}, {name: tail, type: List}]}
//	externs:
//	  - {name: show, params: [{type: str, ownership: borrowed}], result: unit}
//	functions:
//	  - name: wrap
//	    fbip: required
//	    params: [{name: s, type: str}]
//	    result: Box
//	    blocks:
//	      - name: entry
//	        instrs:
//	          - {op: construct, dst: b, type: Box, args: [s]}
//	        term: {return: b}
//
// Instruction ops are let (with lit, var or prim), apply, apply_indirect,
// partial_apply, project and construct. Terminators are return, jump,
// branch, switch and the scalar unreachable.
package tir

import "gopkg.in/yaml.v3"

type moduleDoc struct {
	Types     []yaml.Node `yaml:"types"`
	Externs   []yaml.Node `yaml:"externs"`
	Functions []yaml.Node `yaml:"functions"`
}

type typeDoc struct {
	Struct   string       `yaml:"struct"`
	Enum     string       `yaml:"enum"`
	Opaque   string       `yaml:"opaque"`
	Fields   []fieldDoc   `yaml:"fields"`
	Variants []variantDoc `yaml:"variants"`
}

type fieldDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type variantDoc struct {
	Name   string     `yaml:"name"`
	Fields []fieldDoc `yaml:"fields"`
}

type paramDoc struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Ownership string `yaml:"ownership"`
}

type externDoc struct {
	Name   string     `yaml:"name"`
	Params []paramDoc `yaml:"params"`
	Result string     `yaml:"result"`
}

type funcDoc struct {
	Name   string      `yaml:"name"`
	FBIP   string      `yaml:"fbip"`
	Params []paramDoc  `yaml:"params"`
	Result string      `yaml:"result"`
	Blocks []yaml.Node `yaml:"blocks"`
}

type blockDoc struct {
	Name   string      `yaml:"name"`
	Params []paramDoc  `yaml:"params"`
	Instrs []yaml.Node `yaml:"instrs"`
	Term   yaml.Node   `yaml:"term"`
}

type instrDoc struct {
	Op      string    `yaml:"op"`
	Dst     string    `yaml:"dst"`
	Type    string    `yaml:"type"`
	Lit     yaml.Node `yaml:"lit"`
	Var     string    `yaml:"var"`
	Prim    string    `yaml:"prim"`
	Func    string    `yaml:"func"`
	Closure string    `yaml:"closure"`
	Value   string    `yaml:"value"`
	Field   string    `yaml:"field"`
	Variant string    `yaml:"variant"`
	Args    []string  `yaml:"args"`
}

type termDoc struct {
	Return  *string          `yaml:"return"`
	Jump    string           `yaml:"jump"`
	Args    []string         `yaml:"args"`
	Branch  string           `yaml:"branch"`
	Then    string           `yaml:"then"`
	Else    string           `yaml:"else"`
	Switch  string           `yaml:"switch"`
	Cases   map[int64]string `yaml:"cases"`
	Default string           `yaml:"default"`
}
