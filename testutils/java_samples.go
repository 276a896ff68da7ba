package testutils

// JavaSample is one source file plus the number of vulnerabilities a full
// scan should report for it.
type JavaSample struct {
	Path    string
	Code    string
	Expects int
}

// SampleDirectChain is a two-hop request-to-query flow: the controller
// reads a request parameter and hands it straight to a statement.
var SampleDirectChain = JavaSample{
	Path: "src/UserController.java",
	Code: `
package com.example.web;

import java.sql.Statement;
import javax.servlet.http.HttpServletRequest;

public class UserController {

    private Statement stmt;

    @GetMapping("/user")
    public String findUser(HttpServletRequest request) throws Exception {
        String name = request.getParameter("name");
        return queryUser(name);
    }

    public String queryUser(String name) throws Exception {
        String sql = "select * from users where name = '" + name + "'";
        stmt.executeQuery(sql);
        return sql;
    }
}
`,
	Expects: 1,
}

// SampleSanitizedChain routes the tainted value through an escaping call
// before the sink; findings must carry the sanitizer and a demoted
// severity.
var SampleSanitizedChain = JavaSample{
	Path: "src/SafeUserController.java",
	Code: `
package com.example.web;

import java.sql.Statement;
import javax.servlet.http.HttpServletRequest;
import org.apache.commons.text.StringEscapeUtils;

public class SafeUserController {

    private Statement stmt;

    @GetMapping("/safe-user")
    public String findUser(HttpServletRequest request) throws Exception {
        String name = request.getParameter("name");
        return queryUser(name);
    }

    public String queryUser(String name) throws Exception {
        String clean = StringEscapeUtils.escapeJava(name);
        String sql = "select * from users where name = '" + clean + "'";
        stmt.executeQuery(sql);
        return sql;
    }
}
`,
	Expects: 1,
}

// SampleDeepChain pushes the taint through several service hops.
var SampleDeepChain = JavaSample{
	Path: "src/OrderService.java",
	Code: `
package com.example.service;

import java.sql.Statement;
import javax.servlet.http.HttpServletRequest;

public class OrderService {

    private Statement stmt;

    @PostMapping("/order")
    public void create(HttpServletRequest request) throws Exception {
        String id = request.getParameter("id");
        validate(id);
    }

    public void validate(String id) throws Exception {
        persist(id);
    }

    public void persist(String id) throws Exception {
        stmt.executeUpdate("insert into orders values ('" + id + "')");
    }
}
`,
	Expects: 1,
}

// SampleNoSource calls a sink with a constant; no source exists anywhere
// in the chain, so no finding may be emitted.
var SampleNoSource = JavaSample{
	Path: "src/Bootstrap.java",
	Code: `
package com.example.boot;

import java.sql.Statement;

public class Bootstrap {

    private Statement stmt;

    public void migrate() throws Exception {
        stmt.executeQuery("select 1");
    }
}
`,
	Expects: 0,
}

// SampleRecursion contains mutually recursive helpers around the sink;
// backtracking must terminate and still find the chain.
var SampleRecursion = JavaSample{
	Path: "src/ReportService.java",
	Code: `
package com.example.service;

import java.sql.Statement;
import javax.servlet.http.HttpServletRequest;

public class ReportService {

    private Statement stmt;

    @GetMapping("/report")
    public void report(HttpServletRequest request) throws Exception {
        String q = request.getParameter("q");
        walk(q, 0);
    }

    public void walk(String q, int depth) throws Exception {
        if (depth < 3) {
            descend(q, depth);
        }
        stmt.executeQuery("select * from reports where q = '" + q + "'");
    }

    public void descend(String q, int depth) throws Exception {
        walk(q, depth + 1);
    }
}
`,
	Expects: 1,
}

// SampleCommandExec reaches a process execution sink.
var SampleCommandExec = JavaSample{
	Path: "src/PingController.java",
	Code: `
package com.example.web;

import javax.servlet.http.HttpServletRequest;

public class PingController {

    @GetMapping("/ping")
    public void ping(HttpServletRequest request) throws Exception {
        String host = request.getParameter("host");
        Runtime.getRuntime().exec("ping " + host);
    }
}
`,
	Expects: 1,
}

// SampleXSSTemplate is a JSP page echoing a request parameter.
var SampleXSSTemplate = JavaSample{
	Path: "web/detail.jsp",
	Code: `<%@ page contentType="text/html;charset=UTF-8" %>
<html>
<body>
<%
    String name = request.getParameter("name");
%>
<h1>Hello <%= name %></h1>
<p>Details for ${param.id}</p>
</body>
</html>
`,
	Expects: 1,
}

// SampleCleanTemplate has no user input near its expressions.
var SampleCleanTemplate = JavaSample{
	Path: "web/static.jsp",
	Code: `<%@ page contentType="text/html;charset=UTF-8" %>
<html>
<body>
<h1>About us</h1>
<p>Nothing dynamic here.</p>
</body>
</html>
`,
	Expects: 0,
}
