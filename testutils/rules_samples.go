package testutils

// SampleRulesJSON is a small but complete rule document covering every
// category the engines consume.
const SampleRulesJSON = `{
  "sink_rules": [
    {
      "sink_name": "SQLI",
      "sink_desc": "SQL statement built from tainted data",
      "severity_level": "High",
      "sinks": ["java.sql.Statement:executeQuery|executeUpdate"]
    },
    {
      "sink_name": "RCE",
      "sink_desc": "Command execution with tainted data",
      "severity_level": "Critical",
      "sinks": ["java.lang.Runtime:exec"]
    }
  ],
  "source_rules": [
    {
      "source_name": "HTTP_PARAM",
      "desc": "Request parameter accessor",
      "sources": ["javax.servlet.http.HttpServletRequest:getParameter|getHeader"]
    }
  ],
  "sanitizer_rules": [
    {
      "sanitizer_name": "ESCAPE_JAVA",
      "desc": "String escaping utilities",
      "sanitizers": ["org.apache.commons.text.StringEscapeUtils:escapeJava|escapeHtml4"]
    }
  ],
  "template_rules": [
    {
      "name": "JSP_ECHO",
      "vul_type": "XSS",
      "desc": "Unescaped expression output in JSP",
      "severity": "High",
      "file_exts": ["jsp", "jspx"],
      "patterns": ["<%=\\s*\\w+\\s*%>", "\\$\\{param\\."]
    }
  ]
}`

// SampleRulesYAML mirrors SampleRulesJSON in YAML form.
const SampleRulesYAML = `sink_rules:
  - sink_name: SQLI
    sink_desc: SQL statement built from tainted data
    severity_level: High
    sinks:
      - "java.sql.Statement:executeQuery|executeUpdate"
source_rules:
  - source_name: HTTP_PARAM
    desc: Request parameter accessor
    sources:
      - "javax.servlet.http.HttpServletRequest:getParameter|getHeader"
sanitizer_rules:
  - sanitizer_name: ESCAPE_JAVA
    desc: String escaping utilities
    sanitizers:
      - "org.apache.commons.text.StringEscapeUtils:escapeJava|escapeHtml4"
template_rules:
  - name: JSP_ECHO
    vul_type: XSS
    desc: Unescaped expression output in JSP
    severity: High
    file_exts: [jsp, jspx]
    patterns:
      - '<%=\s*\w+\s*%>'
`

// SampleRulesOneBadPattern has nine loadable rules plus one template
// pattern that does not compile; loading must keep the nine and record
// one bad pattern.
const SampleRulesOneBadPattern = `{
  "sink_rules": [
    {"sink_name": "SQLI", "sink_desc": "sql", "severity_level": "High", "sinks": ["Statement:executeQuery"]},
    {"sink_name": "RCE", "sink_desc": "exec", "severity_level": "Critical", "sinks": ["Runtime:exec"]},
    {"sink_name": "XXE", "sink_desc": "xml", "severity_level": "High", "sinks": ["DocumentBuilder:parse"]},
    {"sink_name": "PATH_TRAVERSAL", "sink_desc": "file", "severity_level": "Medium", "sinks": ["FileInputStream:read"]}
  ],
  "source_rules": [
    {"source_name": "HTTP_PARAM", "desc": "param", "sources": ["HttpServletRequest:getParameter"]},
    {"source_name": "HTTP_HEADER", "desc": "header", "sources": ["HttpServletRequest:getHeader"]},
    {"source_name": "HTTP_BODY", "desc": "body", "sources": ["HttpServletRequest:getInputStream"]}
  ],
  "sanitizer_rules": [
    {"sanitizer_name": "ESCAPE_JAVA", "desc": "escape", "sanitizers": ["StringEscapeUtils:escapeJava"]},
    {"sanitizer_name": "CANONICALIZE", "desc": "canonical", "sanitizers": ["File:getCanonicalPath"]}
  ],
  "template_rules": [
    {"name": "BROKEN", "vul_type": "XSS", "desc": "broken", "severity": "High", "file_exts": ["jsp"], "patterns": ["<%=(unclosed"]}
  ]
}`

// SampleRulesMustSubstrings narrows the SQLI sink to callers whose body
// carries a select statement; used to check the substring gates behave
// the same under both engines.
const SampleRulesMustSubstrings = `{
  "sink_rules": [
    {
      "sink_name": "SQLI",
      "sink_desc": "SQL statement built from tainted data",
      "severity_level": "High",
      "sinks": ["java.sql.Statement:executeQuery|executeUpdate"],
      "must_substrings": ["select"]
    }
  ],
  "source_rules": [
    {
      "source_name": "HTTP_PARAM",
      "desc": "Request parameter accessor",
      "sources": ["javax.servlet.http.HttpServletRequest:getParameter|getHeader"]
    }
  ]
}`

// SampleSecretRules exercises the entropy gate on template rules.
const SampleSecretRules = `{
  "template_rules": [
    {
      "name": "HARDCODED_SECRET",
      "vul_type": "SECRET",
      "desc": "Secret-looking literal in configuration",
      "severity": "High",
      "file_exts": ["properties", "yml"],
      "patterns": ["(?:password|secret|apikey)\\s*=\\s*\\S+"],
      "entropy": true,
      "force_regex": true
    }
  ]
}`
