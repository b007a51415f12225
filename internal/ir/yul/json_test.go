package yul

import (
	"testing"
)

const jsonObjectSrc = `{
  "name": "C",
  "code": {"nodeType": "YulBlock", "src": "0:40:0", "statements": [
    {"nodeType": "YulVariableDeclaration", "src": "2:20:0",
     "variables": [{"nodeType": "YulTypedName", "name": "x", "src": "6:1:0"}],
     "value": {"nodeType": "YulFunctionCall", "src": "11:10:0",
       "functionName": {"nodeType": "YulIdentifier", "name": "add", "src": "11:3:0"},
       "arguments": [
         {"nodeType": "YulLiteral", "kind": "number", "value": "1", "src": "15:1:0"},
         {"nodeType": "YulLiteral", "kind": "string", "value": "", "hexValue": "6869", "src": "18:2:0"}
       ]}},
    {"nodeType": "YulSwitch", "src": "23:15:0",
     "expression": {"nodeType": "YulIdentifier", "name": "x", "src": "30:1:0"},
     "cases": [
       {"nodeType": "YulCase", "src": "32:3:0", "value": {"nodeType": "YulLiteral", "kind": "number", "value": "0x1", "src": "32:1:0"},
        "body": {"nodeType": "YulBlock", "src": "33:2:0", "statements": []}},
       {"nodeType": "YulCase", "src": "35:3:0", "value": "default",
        "body": {"nodeType": "YulBlock", "src": "36:2:0", "statements": [
          {"nodeType": "YulExpressionStatement", "src": "36:2:0", "expression":
            {"nodeType": "YulFunctionCall", "src": "36:2:0",
             "functionName": {"nodeType": "YulIdentifier", "name": "stop", "src": "36:4:0"}, "arguments": []}}
        ]}}
     ]}
  ]},
  "objects": [{"name": "C_deployed", "code": {"nodeType": "YulBlock", "src": "40:2:0", "statements": []}}],
  "data": {"blob": "0x0102"}
}`

func TestDecodeJSON(t *testing.T) {
	obj, err := DecodeJSON([]byte(jsonObjectSrc), 7)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj.Runtime() == nil {
		t.Fatalf("runtime missing")
	}
	decl := obj.Code.Statements[0].(*VariableDeclaration)
	if decl.Src.File != 7 || decl.Src.Start != 2 || decl.Src.End != 22 {
		t.Fatalf("span = %+v", decl.Src)
	}
	call := decl.Value.(*FunctionCall)
	if call.Name != "add" || len(call.Args) != 2 {
		t.Fatalf("call = %#v", call)
	}
	if lit := call.Args[1].(*Literal); lit.Value != "hi" {
		t.Fatalf("hexValue not used: %q", lit.Value)
	}
	sw := obj.Code.Statements[1].(*Switch)
	if sw.Cases[1].Value != nil {
		t.Fatalf("default case must have nil value")
	}
	if string(obj.Data["blob"]) != "\x01\x02" {
		t.Fatalf("data = %x", obj.Data["blob"])
	}
}

func TestDecodeJSONRejectsUnknownNodes(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"name":"C","code":{"nodeType":"YulBlock","statements":[{"nodeType":"YulGoto"}]}}`), 0)
	if err == nil {
		t.Fatalf("expected error")
	}
}
